package features

const (
	DescriptorSize = 128
	PatchRadius    = 8
	CellSize       = 4
	CellsPerSide   = 4
	OrientBins     = 8
	HistogramBins  = 36
	BorderMargin   = 12
	HarrisK        = 0.04
	ClipThreshold  = 0.2
)

// Params controls keypoint detection and description.
type Params struct {
	// MaxFeatures caps the number of keypoints kept, strongest first.
	MaxFeatures int
	// Sigma is the Gaussian blur applied before detection.
	Sigma float64
	// MaxSide downsizes images whose longest side exceeds it. Zero keeps
	// the original size.
	MaxSide int
}

// The three detector configurations used by the engine: a cheap one for
// scanning every design, a richer one for re-examining the shortlist, and a
// dense one for indexing the catalog.
func QueryParams() Params    { return Params{MaxFeatures: 80, Sigma: 3.0, MaxSide: 600} }
func RefineParams() Params   { return Params{MaxFeatures: 300, Sigma: 3.0, MaxSide: 600} }
func GenerateParams() Params { return Params{MaxFeatures: 3500, Sigma: 3.0, MaxSide: 1200} }

package features

import (
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

type Keypoint struct {
	X        float32
	Y        float32
	Response float32
	Angle    float32 // dominant gradient orientation in radians
}

// grayField is a row-major float luminance image with precomputed gradients.
type grayField struct {
	w, h   int
	pix    []float64
	gx, gy []float64
}

func (g *grayField) at(x, y int) int { return y*g.w + x }

// prepare converts img to a blurred luminance field at most p.MaxSide pixels
// on its longest side.
func prepare(img image.Image, p Params) *grayField {
	src := image.Image(imaging.Grayscale(img))
	b := src.Bounds()
	if p.MaxSide > 0 && (b.Dx() > p.MaxSide || b.Dy() > p.MaxSide) {
		src = imaging.Fit(src, p.MaxSide, p.MaxSide, imaging.Box)
	}
	if p.Sigma > 0 {
		src = blur.Gaussian(src, p.Sigma)
	}

	b = src.Bounds()
	g := &grayField{w: b.Dx(), h: b.Dy()}
	g.pix = make([]float64, g.w*g.h)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, _, _, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.pix[g.at(x, y)] = float64(r>>8) / 255.0
		}
	}

	g.gx = make([]float64, len(g.pix))
	g.gy = make([]float64, len(g.pix))
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			i := g.at(x, y)
			g.gx[i] = (g.pix[i+1] - g.pix[i-1]) * 0.5
			g.gy[i] = (g.pix[i+g.w] - g.pix[i-g.w]) * 0.5
		}
	}
	return g
}

// detect returns up to max Harris corners, strongest first. Corners closer
// than BorderMargin to an edge are ignored so the rotated descriptor patch
// always fits.
func detect(g *grayField, max int) []Keypoint {
	if g.w <= 2*BorderMargin || g.h <= 2*BorderMargin || max <= 0 {
		return nil
	}

	resp := make([]float64, len(g.pix))
	for y := BorderMargin - 1; y <= g.h-BorderMargin; y++ {
		for x := BorderMargin - 1; x <= g.w-BorderMargin; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					i := g.at(x+dx, y+dy)
					ix, iy := g.gx[i], g.gy[i]
					sxx += ix * ix
					syy += iy * iy
					sxy += ix * iy
				}
			}
			trace := sxx + syy
			resp[g.at(x, y)] = sxx*syy - sxy*sxy - HarrisK*trace*trace
		}
	}

	var kps []Keypoint
	for y := BorderMargin; y < g.h-BorderMargin; y++ {
		for x := BorderMargin; x < g.w-BorderMargin; x++ {
			r := resp[g.at(x, y)]
			if r <= 1e-12 {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if resp[g.at(x+dx, y+dy)] >= r {
						isMax = false
						break
					}
				}
			}
			if isMax {
				kps = append(kps, Keypoint{X: float32(x), Y: float32(y), Response: float32(r)})
			}
		}
	}

	sort.Slice(kps, func(i, j int) bool {
		if kps[i].Response == kps[j].Response {
			if kps[i].Y == kps[j].Y {
				return kps[i].X < kps[j].X
			}
			return kps[i].Y < kps[j].Y
		}
		return kps[i].Response > kps[j].Response
	})
	if len(kps) > max {
		kps = kps[:max]
	}

	for i := range kps {
		kps[i].Angle = float32(dominantOrientation(g, int(kps[i].X), int(kps[i].Y)))
	}
	return kps
}

// dominantOrientation picks the peak of a magnitude-weighted gradient
// orientation histogram around (cx, cy).
func dominantOrientation(g *grayField, cx, cy int) float64 {
	var hist [HistogramBins]float64
	sigma := float64(PatchRadius) / 2
	for dy := -PatchRadius; dy <= PatchRadius; dy++ {
		for dx := -PatchRadius; dx <= PatchRadius; dx++ {
			x, y := cx+dx, cy+dy
			if x <= 0 || y <= 0 || x >= g.w-1 || y >= g.h-1 {
				continue
			}
			i := g.at(x, y)
			mag := math.Hypot(g.gx[i], g.gy[i])
			if mag == 0 {
				continue
			}
			weight := math.Exp(-float64(dx*dx+dy*dy) / (2 * sigma * sigma))
			angle := normalizeAngle(math.Atan2(g.gy[i], g.gx[i]))
			bin := int(angle / (2 * math.Pi) * HistogramBins)
			if bin >= HistogramBins {
				bin = HistogramBins - 1
			}
			hist[bin] += mag * weight
		}
	}

	best := 0
	for b := 1; b < HistogramBins; b++ {
		if hist[b] > hist[best] {
			best = b
		}
	}
	return (float64(best) + 0.5) * 2 * math.Pi / HistogramBins
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

package features

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
	"testing"
)

// createPatternImage draws deterministic random rectangles so the detector
// has plenty of corners to find.
func createPatternImage(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{128, 128, 128, 255}}, image.Point{}, draw.Src)

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 40; i++ {
		x0 := rng.Intn(w - 20)
		y0 := rng.Intn(h - 20)
		rw := 8 + rng.Intn(30)
		rh := 8 + rng.Intn(30)
		v := uint8(rng.Intn(256))
		r := image.Rect(x0, y0, x0+rw, y0+rh).Intersect(img.Bounds())
		draw.Draw(img, r, &image.Uniform{color.RGBA{v, 255 - v, v / 2, 255}}, image.Point{}, draw.Src)
	}
	return img
}

func createFlatImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{40, 40, 40, 255}}, image.Point{}, draw.Src)
	return img
}

func testParams(max int) Params {
	return Params{MaxFeatures: max, Sigma: 1.0, MaxSide: 0}
}

func TestExtract(t *testing.T) {
	img := createPatternImage(200, 200, 1)

	set, err := Extract(img, testParams(50))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if set.Len() == 0 {
		t.Fatal("expected keypoints in a patterned image")
	}
	if set.Len() > 50 {
		t.Errorf("MaxFeatures not honoured: got %d", set.Len())
	}
	if len(set.Keypoints) != set.Len() {
		t.Errorf("keypoints (%d) and descriptors (%d) out of step", len(set.Keypoints), set.Len())
	}

	for i, d := range set.Descriptors {
		if len(d) != DescriptorSize {
			t.Fatalf("descriptor %d has %d values", i, len(d))
		}
		var sum float64
		for _, v := range d {
			if v < 0 || v > 1 {
				t.Errorf("descriptor %d has out of range value %f", i, v)
			}
			sum += float64(v * v)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-3 {
			t.Errorf("descriptor %d not unit length: %f", i, math.Sqrt(sum))
		}
	}

	for i := 1; i < len(set.Keypoints); i++ {
		if set.Keypoints[i].Response > set.Keypoints[i-1].Response {
			t.Errorf("keypoints not sorted by response at %d", i)
			break
		}
	}

	for _, kp := range set.Keypoints {
		if kp.X < BorderMargin || kp.Y < BorderMargin || kp.X >= 200-BorderMargin || kp.Y >= 200-BorderMargin {
			t.Errorf("keypoint inside border margin: %+v", kp)
		}
	}
}

func TestExtractFlatImage(t *testing.T) {
	set, err := Extract(createFlatImage(100, 100), testParams(50))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected no keypoints in a flat image, got %d", set.Len())
	}
}

func TestExtractEmptyImage(t *testing.T) {
	if _, err := Extract(image.NewRGBA(image.Rect(0, 0, 0, 0)), testParams(10)); err == nil {
		t.Error("expected error for an empty image")
	}
}

func TestExtractTinyImage(t *testing.T) {
	set, err := Extract(createPatternImage(24, 24, 3), testParams(10))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("image smaller than the border margins should have no keypoints, got %d", set.Len())
	}
}

func TestExtractDownscales(t *testing.T) {
	img := createPatternImage(400, 300, 5)
	set, err := Extract(img, Params{MaxFeatures: 100, Sigma: 1.0, MaxSide: 200})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for _, kp := range set.Keypoints {
		if kp.X >= 200 || kp.Y >= 150 {
			t.Errorf("keypoint %+v outside the downscaled 200x150 frame", kp)
		}
	}
}

func TestSelfMatchBeatsOtherImage(t *testing.T) {
	design := createPatternImage(200, 200, 7)
	other := createPatternImage(200, 200, 99)

	train, err := Extract(design, testParams(300))
	if err != nil {
		t.Fatal(err)
	}
	query, err := Extract(design, testParams(60))
	if err != nil {
		t.Fatal(err)
	}
	otherTrain, err := Extract(other, testParams(300))
	if err != nil {
		t.Fatal(err)
	}

	self := Compare(query, train, 0.75)
	cross := Compare(query, otherTrain, 0.75)

	if self.NumMatches == 0 {
		t.Fatal("expected the image to match itself")
	}
	if self.NumMatches <= cross.NumMatches {
		t.Errorf("self matches (%d) should exceed matches against another design (%d)",
			self.NumMatches, cross.NumMatches)
	}
}

func unit(i int) []float32 {
	v := make([]float32, DescriptorSize)
	v[i] = 1
	return v
}

func TestCompareFiltersDuplicatesAndRatio(t *testing.T) {
	train := &Set{Descriptors: [][]float32{unit(0), unit(1), unit(2)}}

	mixed := make([]float32, DescriptorSize)
	mixed[0], mixed[1] = float32(1/math.Sqrt2), float32(1/math.Sqrt2)

	query := &Set{Descriptors: [][]float32{
		unit(0), // claims train 0
		unit(0), // claims train 0 again, so both are dropped
		unit(2), // unique hit on train 2
		mixed,   // equidistant to train 0 and 1, fails the ratio test
	}}

	got := Compare(query, train, 0.75)
	if got.NumMatches != 1 {
		t.Fatalf("expected 1 surviving match, got %d", got.NumMatches)
	}
	if got.TotalDistance != 0 || got.AverageDistance != 0 {
		t.Errorf("exact match should have zero distance, got %+v", got)
	}
}

func TestCompareDegenerateInputs(t *testing.T) {
	one := &Set{Descriptors: [][]float32{unit(0)}}
	two := &Set{Descriptors: [][]float32{unit(0), unit(1)}}

	tests := []struct {
		name         string
		query, train *Set
	}{
		{"empty query", &Set{}, two},
		{"nil query", nil, two},
		{"single training row", two, one},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.query, tt.train, 0.75)
			if got != NoMatch() {
				t.Errorf("expected NoMatch, got %+v", got)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	set, err := Extract(createPatternImage(160, 160, 11), testParams(20))
	if err != nil {
		t.Fatal(err)
	}

	data, err := Encode(set)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.Len() != set.Len() {
		t.Fatalf("row count changed: %d -> %d", set.Len(), back.Len())
	}
	for i := range set.Descriptors {
		if back.Keypoints[i] != set.Keypoints[i] {
			t.Errorf("keypoint %d changed", i)
		}
		for j := range set.Descriptors[i] {
			if back.Descriptors[i][j] != set.Descriptors[i][j] {
				t.Fatalf("descriptor %d value %d changed", i, j)
			}
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"bad magic": []byte("XXXX\x00\x00\x00\x00\x80\x00\x00\x00"),
		"truncated": append([]byte("SFD1\x02\x00\x00\x00\x80\x00\x00\x00"), 1, 2, 3),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(data); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

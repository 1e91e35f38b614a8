package features

import (
	"errors"
	"image"
	"math"
)

var ErrEmptyImage = errors.New("image has no pixels")

// Set holds the keypoints of one image and their 128-dimensional
// descriptors, row i describing keypoint i.
type Set struct {
	Keypoints   []Keypoint
	Descriptors [][]float32
}

// Len returns the number of descriptor rows.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Descriptors)
}

// Extract detects keypoints in img and computes their descriptors.
func Extract(img image.Image, p Params) (*Set, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	g := prepare(img, p)
	kps := detect(g, p.MaxFeatures)

	set := &Set{
		Keypoints:   make([]Keypoint, 0, len(kps)),
		Descriptors: make([][]float32, 0, len(kps)),
	}
	for _, kp := range kps {
		desc, ok := describe(g, kp)
		if !ok {
			continue
		}
		set.Keypoints = append(set.Keypoints, kp)
		set.Descriptors = append(set.Descriptors, desc)
	}
	return set, nil
}

// describe builds a 4x4x8 gradient orientation histogram over a 16x16 patch
// rotated to the keypoint's orientation. It reports false for flat patches.
func describe(g *grayField, kp Keypoint) ([]float32, bool) {
	var hist [DescriptorSize]float64

	theta := float64(kp.Angle)
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	sigma := float64(PatchRadius)

	for py := -PatchRadius; py < PatchRadius; py++ {
		for px := -PatchRadius; px < PatchRadius; px++ {
			ox, oy := float64(px)+0.5, float64(py)+0.5
			sx := int(math.Round(float64(kp.X) + cosT*ox - sinT*oy))
			sy := int(math.Round(float64(kp.Y) + sinT*ox + cosT*oy))
			if sx <= 0 || sy <= 0 || sx >= g.w-1 || sy >= g.h-1 {
				continue
			}

			i := g.at(sx, sy)
			mag := math.Hypot(g.gx[i], g.gy[i])
			if mag == 0 {
				continue
			}
			angle := normalizeAngle(math.Atan2(g.gy[i], g.gx[i]) - theta)
			bin := int(angle / (2 * math.Pi) * OrientBins)
			if bin >= OrientBins {
				bin = OrientBins - 1
			}

			row := (py + PatchRadius) / CellSize
			col := (px + PatchRadius) / CellSize
			weight := math.Exp(-(ox*ox + oy*oy) / (2 * sigma * sigma))
			hist[(row*CellsPerSide+col)*OrientBins+bin] += mag * weight
		}
	}

	if !normalize(hist[:]) {
		return nil, false
	}
	for i := range hist {
		if hist[i] > ClipThreshold {
			hist[i] = ClipThreshold
		}
	}
	if !normalize(hist[:]) {
		return nil, false
	}

	out := make([]float32, DescriptorSize)
	for i, v := range hist {
		out[i] = float32(v)
	}
	return out, true
}

func normalize(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return false
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return true
}

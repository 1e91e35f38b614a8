// Package capture turns a raw camera frame into the JPEG the matching server
// expects: the region under the on-screen tee guide, upright and at most
// MaxWidth pixels wide.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png" // Register PNG format decoder

	"github.com/disintegration/imaging"
)

const (
	// Reference screen the guide geometry is expressed in.
	ReferenceWidth  = 720.0
	ReferenceHeight = 1280.0

	MaxWidth    = 300
	JPEGQuality = 90

	// Fractions of the guide that cover the printable chest area.
	insetX      = 0.2325
	insetY      = 0.10269576379974327
	chestWidth  = 0.5575
	chestHeight = 0.8356867779204108
)

var (
	ErrEmptyRegion  = errors.New("crop region is empty")
	ErrInvalidGuide = errors.New("guide size must be positive")
)

// Guide is the on-screen placement of the tee overlay.
type Guide struct {
	X, Y          int
	Width, Height int
}

// Region is the crop rectangle in rotated frame coordinates plus the factor
// applied to both axes afterwards.
type Region struct {
	Rect  image.Rectangle
	Scale float64
}

// ComputeCrop maps the guide onto a frame of frameW x frameH sensor pixels
// (before rotation).
func ComputeCrop(frameW, frameH int, g Guide) (Region, error) {
	if g.Width <= 0 || g.Height <= 0 {
		return Region{}, ErrInvalidGuide
	}
	if frameW <= 0 || frameH <= 0 {
		return Region{}, ErrEmptyRegion
	}

	normalizeX := ReferenceWidth / float64(frameH)
	normalizeY := ReferenceHeight / float64(frameW)

	x := int(float64(g.Width)*normalizeX*insetX) + g.X
	y := int(float64(g.Height)*normalizeY*insetY) + g.Y
	w := int(float64(g.Width) * normalizeX * chestWidth)
	h := int(float64(g.Height) * normalizeY * chestHeight)

	scale := 1.0
	if w > MaxWidth {
		scale = float64(MaxWidth) / float64(w)
	}

	// the rotated frame is frameH wide and frameW tall
	bounds := image.Rect(0, 0, frameH, frameW)
	rect := image.Rect(x, y, x+w, y+h).Intersect(bounds)
	if rect.Empty() {
		return Region{}, ErrEmptyRegion
	}
	return Region{Rect: rect, Scale: scale}, nil
}

// Crop rotates frame 90 degrees clockwise and cuts out the guide region.
func Crop(frame image.Image, g Guide) (image.Image, error) {
	b := frame.Bounds()
	region, err := ComputeCrop(b.Dx(), b.Dy(), g)
	if err != nil {
		return nil, err
	}

	rotated := imaging.Rotate270(frame)
	cropped := imaging.Crop(rotated, region.Rect)

	if region.Scale != 1.0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * region.Scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * region.Scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, ErrEmptyRegion
		}
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}
	return cropped, nil
}

// Process crops frame and encodes the result as a JPEG.
func Process(frame image.Image, g Guide) ([]byte, error) {
	cropped, err := Crop(frame, g)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}

// ProcessFile loads a frame from disk, honouring EXIF orientation, and
// processes it.
func ProcessFile(path string, g Guide) ([]byte, error) {
	frame, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	return Process(frame, g)
}

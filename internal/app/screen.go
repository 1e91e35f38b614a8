// Package app holds the client screens: the shared base, the capture flow
// and the results view.
package app

import (
	"fmt"
	"image"
	"io"
	"strings"

	"golang.org/x/image/font"

	"github.com/amoffat/sifter/internal/assets"
	"github.com/amoffat/sifter/pkg/logger"
)

const (
	DefaultScreenWidth  = 720
	DefaultScreenHeight = 1280

	logoSize = 48
)

// Screen is the state every screen shares.
type Screen struct {
	Width  int
	Height int
	Fonts  *assets.Typefaces
	Log    *logger.Logger
}

// NewScreen returns a base screen. Non-positive sizes fall back to the
// 720x1280 reference display.
func NewScreen(width, height int, assetDir string, log *logger.Logger) *Screen {
	if width <= 0 {
		width = DefaultScreenWidth
	}
	if height <= 0 {
		height = DefaultScreenHeight
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Screen{
		Width:  width,
		Height: height,
		Fonts:  assets.NewTypefaces(assetDir, log),
		Log:    log,
	}
}

func (s *Screen) Size() image.Point {
	return image.Pt(s.Width, s.Height)
}

// LogoFace is the brand typeface at logo size.
func (s *Screen) LogoFace() font.Face {
	return s.Fonts.Brand(logoSize)
}

// PrintLogo writes the text logo framed to the screen's width in columns
// of the logo face.
func (s *Screen) PrintLogo(w io.Writer) {
	adv := font.MeasureString(s.LogoFace(), "S").Ceil()
	cols := 40
	if adv > 0 {
		cols = min(max(s.Width/adv, 12), 60)
	}
	bar := strings.Repeat("═", cols)
	fmt.Fprintf(w, "╔%s╗\n", bar)
	fmt.Fprintf(w, "║%s║\n", center("S I F T E R", cols))
	fmt.Fprintf(w, "╚%s╝\n", bar)
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

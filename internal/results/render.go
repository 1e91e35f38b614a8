package results

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const cardPadding = 16

// WriteText prints the result the way the results screen lays it out.
func WriteText(w io.Writer, r *Result, screenWidth int) {
	if r.ID == 0 && r.Title == "" {
		fmt.Fprintln(w, "❌ No match")
		return
	}

	fmt.Fprintf(w, "👕 %s\n", r.Title)
	fmt.Fprintf(w, "   by %s\n", r.Artist)
	fmt.Fprintf(w, "   Design:     %s\n", r.DesignURL)
	fmt.Fprintf(w, "   Artist:     %s\n", r.ArtistURL)
	fmt.Fprintf(w, "   Confidence: %s%%\n", humanize.FtoaWithDigits(r.Confidence*100, 1))

	if r.Added != "" {
		if added, err := time.Parse("2006-01-02", r.Added); err == nil {
			fmt.Fprintf(w, "   Added:      %s (%s)\n", r.Added, humanize.Time(added))
		} else {
			fmt.Fprintf(w, "   Added:      %s\n", r.Added)
		}
	}
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "   Matched in: %.2fs\n", r.Elapsed)
	}
	if r.Image != nil {
		fmt.Fprintf(w, "   Thumbnail:  %dx%d shown at %dx%d (%s)\n",
			r.Width, r.Height, screenWidth, r.DisplayHeight(screenWidth),
			humanize.Bytes(uint64(len(r.Thumbnail)*3/4)))
	}
}

// RenderCard draws the thumbnail scaled to screenWidth with the title and
// artist underneath.
func RenderCard(r *Result, screenWidth int, title, body font.Face) *image.NRGBA {
	designH := r.DisplayHeight(screenWidth)
	if r.Image == nil {
		designH = 0
	}

	titleH := title.Metrics().Height.Ceil()
	bodyH := body.Metrics().Height.Ceil()
	textH := cardPadding*3 + titleH + bodyH

	card := imaging.New(screenWidth, designH+textH, color.White)
	if r.Image != nil && designH > 0 {
		design := imaging.Resize(r.Image, screenWidth, designH, imaging.Lanczos)
		draw.Draw(card, image.Rect(0, 0, screenWidth, designH), design, image.Point{}, draw.Src)
	}

	y := designH + cardPadding + title.Metrics().Ascent.Ceil()
	drawText(card, title, strings.ToUpper(r.Title), cardPadding, y, color.Black)
	y += titleH + cardPadding
	drawText(card, body, r.Artist, cardPadding, y, color.Gray{Y: 90})
	return card
}

func drawText(dst draw.Image, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// SaveCard writes a rendered card as an image file, format from the
// extension.
func SaveCard(card image.Image, path string) error {
	if err := imaging.Save(card, path); err != nil {
		return fmt.Errorf("saving card: %w", err)
	}
	return nil
}

package app

import (
	"io"

	"github.com/amoffat/sifter/internal/assets"
	"github.com/amoffat/sifter/internal/results"
)

const (
	titleSize = 32
	bodySize  = 20
)

type ResultsScreen struct {
	*Screen
	Out io.Writer
	// CardPath, when set, receives a rendered image of the result.
	CardPath string
}

func NewResultsScreen(base *Screen, out io.Writer) *ResultsScreen {
	return &ResultsScreen{Screen: base, Out: out}
}

// Show loads the response handed over by the capture screen, deletes the
// file and displays it. A malformed response shows as no match.
func (r *ResultsScreen) Show(jsonPath string) (*results.Result, error) {
	res, err := results.LoadAndRemove(jsonPath, r.Log)
	if err != nil {
		return nil, err
	}

	results.WriteText(r.Out, res, r.Width)

	if r.CardPath != "" {
		card := results.RenderCard(res, r.Width, r.Fonts.Brand(titleSize), r.Fonts.Face(assets.BrandFont, bodySize))
		if err := results.SaveCard(card, r.CardPath); err != nil {
			r.Log.Errorf("Could not save result card: %v", err)
		} else {
			r.Log.Infof("Result card written to %s", r.CardPath)
		}
	}
	return res, nil
}

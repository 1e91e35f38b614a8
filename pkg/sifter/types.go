package sifter

import (
	"errors"
	"fmt"

	"github.com/amoffat/sifter/pkg/sifter/features"
)

var (
	ErrDesignNotFound = errors.New("design not found")
	ErrNoDescriptors  = errors.New("no design descriptors loaded")
	ErrNoMatch        = errors.New("no candidate design matched")
	ErrBadImage       = errors.New("image could not be decoded")
)

// Design is one catalog entry.
type Design struct {
	ID        int
	Title     string
	Artist    string
	ArtistURL string
	DateAdded string
	ImagePath string
	Width     int
	Height    int
}

// PotentialMatch is a candidate design for a query image. ID is -1 when the
// slot never received a comparison.
type PotentialMatch struct {
	ID         int
	Confidence float64
	StdAway    float64
	Details    features.Details
}

func newPotentialMatch() PotentialMatch {
	return PotentialMatch{ID: -1, Details: features.NoMatch()}
}

func (m PotentialMatch) String() string {
	return fmt.Sprintf("<PotentialMatch %d: %d, confidence: %.3f>", m.ID, m.Details.NumMatches, m.Confidence)
}

// MatchInfo is the response sent to clients for a matched design.
type MatchInfo struct {
	ID         int     `json:"id"`
	DesignURL  string  `json:"design_url"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Added      string  `json:"added"`
	ArtistURL  string  `json:"artist_url"`
	Confidence float64 `json:"confidence"`
	Elapsed    float64 `json:"elapsed"`
	Thumbnail  string  `json:"thumbnail"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`

	Match PotentialMatch `json:"-"`
}

type GenerateReport struct {
	Indexed int
	Skipped int
	Failed  int
}

// BadGuess records a test image whose best match was the wrong design.
type BadGuess struct {
	Expected int
	Got      int
	StdAway  float64
}

type AccuracyReport struct {
	Tested           int
	Correct          int
	Accuracy         float64
	AvgMatchSeconds  float64
	CorrectStdAway   []float64
	IncorrectStdAway []float64
	BadGuesses       []BadGuess
}

type Stats struct {
	Designs        int64
	DescriptorSets int64
	Preloaded      int
}

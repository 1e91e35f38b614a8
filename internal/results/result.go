// Package results reads a match response handed over from the capture step
// and prepares it for display.
package results

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
)

// TempPattern names the files carrying a response between screens.
const TempPattern = "match_results*.json"

type Logger interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Result is one parsed match response. It is never modified after Parse.
type Result struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	ArtistURL  string  `json:"artist_url"`
	DesignURL  string  `json:"design_url"`
	Added      string  `json:"added"`
	Confidence float64 `json:"confidence"`
	Elapsed    float64 `json:"elapsed"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Thumbnail  string  `json:"thumbnail"`

	// Image is the decoded thumbnail, nil when absent or undecodable.
	Image image.Image `json:"-"`
}

// Parse decodes a response field by field. Malformed JSON yields an empty
// result and fields of the wrong type are left at their zero value; both
// are logged.
func Parse(data []byte, log Logger) *Result {
	r := &Result{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		logError(log, "Malformed match response: %v", err)
		return r
	}

	field := func(name string, dst any) {
		raw, ok := fields[name]
		if !ok {
			logWarn(log, "Match response has no %q", name)
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			logWarn(log, "Match response field %q: %v", name, err)
		}
	}

	field("id", &r.ID)
	field("title", &r.Title)
	field("artist", &r.Artist)
	field("confidence", &r.Confidence)
	field("artist_url", &r.ArtistURL)
	field("design_url", &r.DesignURL)
	field("width", &r.Width)
	field("height", &r.Height)
	field("thumbnail", &r.Thumbnail)

	// sent by newer servers only
	if _, ok := fields["added"]; ok {
		field("added", &r.Added)
	}
	if _, ok := fields["elapsed"]; ok {
		field("elapsed", &r.Elapsed)
	}

	if r.Thumbnail != "" {
		img, err := decodeThumbnail(r.Thumbnail)
		if err != nil {
			logWarn(log, "Could not decode thumbnail: %v", err)
		} else {
			r.Image = img
		}
	}
	return r
}

func decodeThumbnail(s string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("thumbnail is not base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("thumbnail is not an image: %w", err)
	}
	return img, nil
}

// DisplayHeight is the height the design takes when drawn screenWidth
// pixels wide.
func (r *Result) DisplayHeight(screenWidth int) int {
	if r.Width <= 0 {
		return 0
	}
	return int(float64(screenWidth) * (float64(r.Height) / float64(r.Width)))
}

// SaveTemp writes a response to a new temp file in dir and returns its path.
func SaveTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return "", fmt.Errorf("creating results file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing results file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing results file: %w", err)
	}
	return f.Name(), nil
}

// LoadAndRemove reads the response at path, deletes the file and parses it.
// Only a failed read is an error.
func LoadAndRemove(path string, log Logger) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		logWarn(log, "Could not remove %s: %v", path, err)
	}
	return Parse(data, log), nil
}

func logWarn(log Logger, format string, args ...any) {
	if log != nil {
		log.Warnf(format, args...)
	}
}

func logError(log Logger, format string, args ...any) {
	if log != nil {
		log.Errorf(format, args...)
	}
}

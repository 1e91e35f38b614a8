// Package assets loads fonts from the client's asset directory.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// BrandFont is the typeface of the logo, titles and buttons.
const BrandFont = "futura-bold.ttf"

type Logger interface {
	Errorf(format string, args ...any)
}

// Typefaces memoises parsed fonts by asset path. Loads that fail are logged
// and retried on the next call.
type Typefaces struct {
	mu    sync.Mutex
	dir   string
	log   Logger
	fonts map[string]*opentype.Font
}

func NewTypefaces(dir string, log Logger) *Typefaces {
	return &Typefaces{
		dir:   dir,
		log:   log,
		fonts: make(map[string]*opentype.Font),
	}
}

// Get returns the font at assetPath, relative to the asset directory, or nil
// when it cannot be loaded.
func (t *Typefaces) Get(assetPath string) *opentype.Font {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.fonts[assetPath]; ok {
		return f
	}

	f, err := t.load(assetPath)
	if err != nil {
		if t.log != nil {
			t.log.Errorf("Could not get typeface '%s' because %v", assetPath, err)
		}
		return nil
	}
	t.fonts[assetPath] = f
	return f
}

func (t *Typefaces) load(assetPath string) (*opentype.Font, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, assetPath))
	if err != nil {
		return nil, err
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", assetPath, err)
	}
	return f, nil
}

// Face returns a face of the font at assetPath at size points. When the
// asset is missing the bundled Go Bold font stands in, and if even that
// fails the fixed 7x13 bitmap face is used.
func (t *Typefaces) Face(assetPath string, size float64) font.Face {
	f := t.Get(assetPath)
	if f == nil {
		f = fallback()
	}
	if f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			return face
		}
		if t.log != nil {
			t.log.Errorf("Could not size typeface '%s': %v", assetPath, err)
		}
	}
	return basicfont.Face7x13
}

// Brand returns the brand typeface at size points.
func (t *Typefaces) Brand(size float64) font.Face {
	return t.Face(BrandFont, size)
}

var (
	fallbackOnce sync.Once
	fallbackFont *opentype.Font
)

func fallback() *opentype.Font {
	fallbackOnce.Do(func() {
		fallbackFont, _ = opentype.Parse(gobold.TTF)
	})
	return fallbackFont
}

// Package scanner animates the sweeping scan line shown while an upload is
// in flight.
package scanner

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	DefaultScanRate      = 2.0
	DefaultTimestep      = 1.0 / 30.0
	DefaultStrokeWidth   = 1.0
	DefaultVolumePadding = 0.25
	DefaultTrailLines    = 200

	brightLineFactor = 20
)

// Accent is the colour of the trailing lines.
var Accent = colorful.Color{R: 0, G: 0.682, B: 0.937}

// Line is one horizontal stroke across the full view width.
type Line struct {
	Y     int
	Width float64
	Color color.NRGBA
}

// Frame is what one animation step draws.
type Frame struct {
	Position  int
	Direction int
	Progress  float64
	// Volume is the scanning sound level, faded in and out near the edges.
	Volume float64
	Lines  []Line
}

type Scanner struct {
	mu         sync.Mutex
	scanning   bool
	lastPos    int
	direction  int
	onBoundary func()

	scanRate      float64
	timestep      float64
	strokeWidth   float64
	volumePadding float64
	trailLines    int
	accent        colorful.Color
}

type Option func(*Scanner)

// WithTiming sets the seconds per full sweep and per step.
func WithTiming(scanRate, timestep float64) Option {
	return func(s *Scanner) {
		s.scanRate = scanRate
		s.timestep = timestep
	}
}

// WithTrailLines sets how many fading lines follow the bright one. Negative
// counts draw no trail.
func WithTrailLines(n int) Option {
	return func(s *Scanner) {
		s.trailLines = max(n, 0)
	}
}

func WithAccent(c colorful.Color) Option {
	return func(s *Scanner) {
		s.accent = c
	}
}

func New(opts ...Option) *Scanner {
	s := &Scanner{
		direction:     1,
		scanRate:      DefaultScanRate,
		timestep:      DefaultTimestep,
		strokeWidth:   DefaultStrokeWidth,
		volumePadding: DefaultVolumePadding,
		trailLines:    DefaultTrailLines,
		accent:        Accent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a sweep from the top, discarding any pending boundary stop.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = true
	s.lastPos = 0
	s.direction = 1
	s.onBoundary = nil
}

// Stop halts the sweep immediately. A pending boundary callback never fires.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	s.onBoundary = nil
}

// StopAtBoundary stops the sweep the next time the line reaches the top or
// bottom edge and then calls cb once.
func (s *Scanner) StopAtBoundary(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBoundary = cb
}

func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Step advances the sweep for a view height pixels tall. It reports false
// when nothing should be drawn: the scanner is idle or it just stopped at a
// boundary.
func (s *Scanner) Step(height int) (Frame, bool) {
	s.mu.Lock()
	if !s.scanning || height <= 0 {
		s.mu.Unlock()
		return Frame{}, false
	}

	newPos := int(float64(s.lastPos) + float64(s.direction)*(float64(height)*s.timestep)/s.scanRate)

	boundary := false
	if newPos > height {
		newPos = height
		s.direction = -1
		boundary = true
	} else if newPos < 0 {
		newPos = 0
		s.direction = 1
		boundary = true
	}
	s.lastPos = newPos

	if boundary && s.onBoundary != nil {
		cb := s.onBoundary
		s.onBoundary = nil
		s.scanning = false
		s.mu.Unlock()
		cb()
		return Frame{}, false
	}

	progress := float64(newPos) / float64(height)
	frame := Frame{
		Position:  newPos,
		Direction: s.direction,
		Progress:  progress,
		Volume:    s.volume(progress),
		Lines:     s.lines(newPos),
	}
	s.mu.Unlock()
	return frame, true
}

func (s *Scanner) volume(progress float64) float64 {
	fromStart := math.Min(progress/s.volumePadding, 1)
	fromEnd := math.Max((1-progress)/s.volumePadding, 0)
	return math.Min(fromStart, fromEnd)
}

func (s *Scanner) lines(pos int) []Line {
	lines := make([]Line, 0, s.trailLines+1)
	lines = append(lines, Line{
		Y:     pos,
		Width: s.strokeWidth * brightLineFactor,
		Color: color.NRGBA{255, 255, 255, 255},
	})

	r, g, b := s.accent.RGB255()
	for i := 0; i < s.trailLines; i++ {
		y := int(float64(pos) - float64(s.direction)*(float64(i)*s.strokeWidth))
		alpha := 1.0 - float64(i)/float64(s.trailLines)
		lines = append(lines, Line{
			Y:     y,
			Width: s.strokeWidth,
			Color: color.NRGBA{r, g, b, uint8(255 * alpha)},
		})
	}
	return lines
}

// Run steps the sweep once per timestep and hands each frame to render. It
// returns when the scanner stops or ctx is done.
func (s *Scanner) Run(ctx context.Context, height int, render func(Frame)) error {
	s.mu.Lock()
	interval := time.Duration(s.timestep * float64(time.Second))
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, ok := s.Step(height)
			if !ok {
				if !s.Scanning() {
					return nil
				}
				continue
			}
			if render != nil {
				render(frame)
			}
		}
	}
}

// Draw paints a frame's lines across dst, blending over what is there.
func Draw(dst draw.Image, f Frame) {
	b := dst.Bounds()
	for _, l := range f.Lines {
		w := int(math.Max(l.Width, 1))
		top := b.Min.Y + l.Y - w/2
		r := image.Rect(b.Min.X, top, b.Max.X, top+w).Intersect(b)
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r, image.NewUniform(l.Color), image.Point{}, draw.Over)
	}
}

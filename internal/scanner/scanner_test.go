package scanner

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestStepIdle(t *testing.T) {
	s := New()
	if _, ok := s.Step(300); ok {
		t.Error("Expected no frame before Start")
	}
}

func TestStepSweepsDownAndBack(t *testing.T) {
	s := New()
	s.Start()

	// 300px in 2s at 30 steps per second moves 5px per step
	frame, ok := s.Step(300)
	if !ok {
		t.Fatal("Expected a frame")
	}
	if frame.Position != 5 || frame.Direction != 1 {
		t.Errorf("Unexpected first frame: pos=%d dir=%d", frame.Position, frame.Direction)
	}

	for i := 0; i < 59; i++ {
		frame, _ = s.Step(300)
	}
	if frame.Position != 300 || frame.Direction != 1 {
		t.Fatalf("Expected to reach the bottom exactly, got pos=%d dir=%d", frame.Position, frame.Direction)
	}

	frame, _ = s.Step(300)
	if frame.Position != 300 || frame.Direction != -1 {
		t.Errorf("Expected overshoot to clamp and flip, got pos=%d dir=%d", frame.Position, frame.Direction)
	}

	frame, _ = s.Step(300)
	if frame.Position != 295 {
		t.Errorf("Expected sweep back up, got pos=%d", frame.Position)
	}
}

func TestFrameLines(t *testing.T) {
	s := New()
	s.Start()
	frame, _ := s.Step(300)

	if len(frame.Lines) != DefaultTrailLines+1 {
		t.Fatalf("Expected %d lines, got %d", DefaultTrailLines+1, len(frame.Lines))
	}

	bright := frame.Lines[0]
	if bright.Y != 5 || bright.Width != 20 || bright.Color != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("Unexpected bright line %+v", bright)
	}

	first := frame.Lines[1]
	if first.Y != 5 || first.Color.A != 255 {
		t.Errorf("Unexpected first trailing line %+v", first)
	}
	r, g, b := Accent.RGB255()
	if first.Color.R != r || first.Color.G != g || first.Color.B != b {
		t.Errorf("Trailing line not in accent colour: %+v", first.Color)
	}

	// i=100 of 200 trails 100px behind the direction of travel at half alpha
	mid := frame.Lines[101]
	if mid.Y != -95 || mid.Color.A != 127 {
		t.Errorf("Unexpected middle trailing line %+v", mid)
	}
	last := frame.Lines[len(frame.Lines)-1]
	if last.Color.A != 1 {
		t.Errorf("Expected last line nearly transparent, got alpha %d", last.Color.A)
	}
}

func TestWithTrailLines(t *testing.T) {
	tests := []struct {
		trail int
		want  int
	}{
		{10, 11},
		{0, 1},
		{-3, 1},
	}
	for _, tt := range tests {
		s := New(WithTrailLines(tt.trail))
		s.Start()
		frame, ok := s.Step(300)
		if !ok {
			t.Fatalf("Expected a frame for trail %d", tt.trail)
		}
		if len(frame.Lines) != tt.want {
			t.Errorf("trail %d: expected %d lines, got %d", tt.trail, tt.want, len(frame.Lines))
		}
	}

	s := New(WithTrailLines(10))
	s.Start()
	frame, _ := s.Step(300)
	// alpha falls by a tenth per line
	if a := frame.Lines[6].Color.A; a != 127 {
		t.Errorf("Expected half alpha at the sixth trailing line, got %d", a)
	}
}

func TestVolumeEnvelope(t *testing.T) {
	s := New()
	tests := []struct {
		progress float64
		want     float64
	}{
		{0, 0},
		{0.125, 0.5},
		{0.25, 1},
		{0.5, 1},
		{0.875, 0.5},
		{1, 0},
	}
	for _, tt := range tests {
		if got := s.volume(tt.progress); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("volume(%f) = %f, want %f", tt.progress, got, tt.want)
		}
	}
}

func TestStopAtBoundaryFiresOnce(t *testing.T) {
	s := New()
	s.Start()
	for i := 0; i < 10; i++ {
		s.Step(300)
	}

	calls := 0
	s.StopAtBoundary(func() { calls++ })

	frames := 0
	for i := 0; i < 100; i++ {
		if _, ok := s.Step(300); ok {
			frames++
		}
	}

	if calls != 1 {
		t.Fatalf("Expected callback once, got %d", calls)
	}
	// 10 steps taken, 50 more reach pos 300, the 51st overshoots and stops
	if frames != 50 {
		t.Errorf("Expected 50 frames before stopping, got %d", frames)
	}
	if s.Scanning() {
		t.Error("Expected scanner stopped after boundary")
	}
}

func TestStopDropsPendingCallback(t *testing.T) {
	s := New()
	s.Start()

	called := false
	s.StopAtBoundary(func() { called = true })
	s.Stop()

	s.Start()
	for i := 0; i < 200; i++ {
		s.Step(300)
	}
	if called {
		t.Error("Callback fired after Stop")
	}
}

func TestCallbackMayRestart(t *testing.T) {
	s := New()
	s.Start()
	s.StopAtBoundary(func() { s.Start() })

	for i := 0; i < 61; i++ {
		s.Step(300)
	}
	if !s.Scanning() {
		t.Error("Expected the callback's Start to take effect")
	}
}

func TestRunStopsAtBoundary(t *testing.T) {
	s := New(WithTiming(0.02, 0.005))
	s.Start()

	var frames atomic.Int32
	var fired atomic.Bool
	s.StopAtBoundary(func() { fired.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx, 100, func(Frame) { frames.Add(1) })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !fired.Load() {
		t.Error("Expected boundary callback")
	}
	// 25px per step: 25, 50, 75, 100 then overshoot
	if frames.Load() != 4 {
		t.Errorf("Expected 4 rendered frames, got %d", frames.Load())
	}
}

func TestRunCancelled(t *testing.T) {
	s := New()
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx, 300, nil); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestDraw(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 10, 50))
	Draw(dst, Frame{Lines: []Line{
		{Y: 25, Width: 20, Color: color.NRGBA{255, 255, 255, 255}},
		{Y: 2, Width: 1, Color: color.NRGBA{0, 0, 255, 255}},
	}})

	if got := dst.RGBAAt(5, 20); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected bright line at y=20, got %v", got)
	}
	if got := dst.RGBAAt(5, 40); got.A != 0 {
		t.Errorf("Expected untouched pixel at y=40, got %v", got)
	}
	if got := dst.RGBAAt(0, 2); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("Expected trailing line at y=2, got %v", got)
	}
}

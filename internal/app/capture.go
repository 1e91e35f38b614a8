package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amoffat/sifter/internal/capture"
	"github.com/amoffat/sifter/internal/results"
	"github.com/amoffat/sifter/internal/scanner"
)

// Matcher uploads a cropped JPEG and returns the server's JSON answer.
type Matcher interface {
	Match(ctx context.Context, jpeg []byte) ([]byte, error)
}

// CaptureScreen turns a shutter press into a results file.
type CaptureScreen struct {
	*Screen
	Guide    capture.Guide
	Scanner  *scanner.Scanner
	Client   Matcher
	CacheDir string
	// Render draws each sweep frame; nil draws nothing.
	Render func(scanner.Frame)
}

func NewCaptureScreen(base *Screen, client Matcher, cacheDir string) *CaptureScreen {
	return &CaptureScreen{
		Screen:   base,
		Guide:    DefaultGuide(base),
		Scanner:  scanner.New(),
		Client:   client,
		CacheDir: cacheDir,
	}
}

// DefaultGuide places the tee overlay over the whole screen.
func DefaultGuide(s *Screen) capture.Guide {
	return capture.Guide{Width: s.Width, Height: s.Height}
}

// Shutter crops the frame at framePath, uploads it while the scanner sweeps,
// and returns the path of the temp file holding the response once the sweep
// has reached an edge. Upload failures stop the sweep and are not retried.
func (c *CaptureScreen) Shutter(ctx context.Context, framePath string) (string, error) {
	jpeg, err := capture.ProcessFile(framePath, c.Guide)
	if err != nil {
		return "", fmt.Errorf("processing frame: %w", err)
	}
	c.Log.Debugf("Cropped frame to %d bytes", len(jpeg))

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.Scanner.Start()
	done := make(chan error, 1)
	go func() {
		done <- c.Scanner.Run(scanCtx, c.Height, c.Render)
	}()

	stop := func() {
		c.Scanner.Stop()
		cancel()
		<-done
	}

	body, err := c.Client.Match(ctx, jpeg)
	if err != nil {
		stop()
		c.Log.Errorf("Upload failed: %v", err)
		return "", fmt.Errorf("uploading frame: %w", err)
	}

	path, err := results.SaveTemp(c.CacheDir, body)
	if err != nil {
		stop()
		return "", err
	}

	ready := make(chan struct{})
	c.Scanner.StopAtBoundary(func() { close(ready) })

	select {
	case <-ready:
		<-done
	case <-done:
		// the sweep was stopped from elsewhere; the response is still good
	case <-ctx.Done():
		stop()
		os.Remove(path)
		return "", ctx.Err()
	}
	return path, nil
}

// TerminalSweep renders sweep frames as a one-line progress gauge.
func TerminalSweep(w io.Writer, cols int) func(scanner.Frame) {
	return func(f scanner.Frame) {
		pos := int(f.Progress * float64(cols-1))
		pos = min(max(pos, 0), cols-1)
		line := strings.Repeat("·", pos) + "█" + strings.Repeat("·", cols-1-pos)
		fmt.Fprintf(w, "\r🔍 [%s]", line)
	}
}

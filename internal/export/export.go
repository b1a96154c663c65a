// Package export implements the two output paths: live capture of the
// rendered frames and mixed audio into a container, and the offline
// deterministic narration mixdown to WAV.
package export

import (
	"context"
	"errors"
	"image"
)

// ErrExportFailed wraps every export failure surfaced to callers
var ErrExportFailed = errors.New("export failed")

// Capture describes the streams a recorder receives
type Capture struct {
	Width      int
	Height     int
	FPS        float64
	SampleRate int
	Channels   int
}

// Recorder accumulates a live capture and assembles it on Stop
type Recorder interface {
	Start(ctx context.Context, format Capture) error
	// WriteFrame receives every rendered frame; the image is reused by the
	// caller after WriteFrame returns.
	WriteFrame(frame *image.RGBA) error
	// WriteAudio receives the mixed audio; the slice is reused as well.
	WriteAudio(samples []float32) error
	// Stop finalizes whatever was captured into the output container.
	Stop() error
}

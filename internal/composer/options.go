package composer

import (
	"time"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/render"
)

// Options configures a composer instance
type Options struct {
	FPS    float64
	Width  int
	Height int

	// Recording waits Warmup before starting the recorder, then RecordLead
	// before starting playback, and keeps capturing for Grace after the end.
	Warmup     time.Duration
	RecordLead time.Duration
	Grace      time.Duration

	SampleRate int
	Channels   int
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		FPS:        30,
		Width:      render.Width,
		Height:     render.Height,
		Warmup:     600 * time.Millisecond,
		RecordLead: 150 * time.Millisecond,
		Grace:      1200 * time.Millisecond,
		SampleRate: 44100,
		Channels:   1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.Warmup < 0 {
		o.Warmup = 0
	}
	if o.RecordLead < 0 {
		o.RecordLead = 0
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	if o.SampleRate <= 0 {
		o.SampleRate = d.SampleRate
	}
	if o.Channels != 2 {
		o.Channels = 1
	}
	return o
}

package media

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// PCMDecoder decodes a source to interleaved float32 samples
type PCMDecoder interface {
	DecodePCM(ctx context.Context, inputPath string, rate, channels int) ([]float32, error)
}

// Track is an audio Element backed by fully decoded PCM. Its position only
// advances as the mixing graph pulls samples through Read.
type Track struct {
	src      string
	rate     int
	channels int
	declared float64

	ready chan struct{}

	mu      sync.Mutex
	samples []float32
	err     error
	paused  bool
	closed  bool
	cursor  int
}

// NewTrack creates a paused track; call Load to begin decoding
func NewTrack(src string, rate, channels int, declared float64) *Track {
	return &Track{
		src:      src,
		rate:     rate,
		channels: channels,
		declared: declared,
		ready:    make(chan struct{}),
		paused:   true,
	}
}

// NewTrackFromSamples creates a track over already decoded samples
func NewTrackFromSamples(src string, samples []float32, rate, channels int) *Track {
	t := NewTrack(src, rate, channels, 0)
	t.samples = samples
	close(t.ready)
	return t
}

// Load decodes the source in the background
func (t *Track) Load(ctx context.Context, dec PCMDecoder) {
	go func() {
		samples, err := dec.DecodePCM(ctx, t.src, t.rate, t.channels)
		t.mu.Lock()
		t.samples, t.err = samples, err
		t.mu.Unlock()
		close(t.ready)
	}()
}

// Ready is closed once decoding finished
func (t *Track) Ready() <-chan struct{} {
	return t.ready
}

// Err returns the decode error, if any
func (t *Track) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Play starts the track once decoding has finished
func (t *Track) Play(done func(error)) {
	go func() {
		<-t.ready
		t.mu.Lock()
		var err error
		switch {
		case t.closed:
			err = fmt.Errorf("track %s: closed", t.src)
		case t.err != nil:
			err = fmt.Errorf("track %s: %w", t.src, t.err)
		case t.cursor >= t.frames():
			err = fmt.Errorf("track %s: at end", t.src)
		default:
			t.paused = false
		}
		t.mu.Unlock()
		done(err)
	}()
}

// Pause stops consumption
func (t *Track) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

// Paused reports whether the track is paused or exhausted
func (t *Track) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Position returns the playback position in seconds
func (t *Track) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.cursor) / float64(t.rate)
}

// SetPosition moves the playback position
func (t *Track) SetPosition(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	t.mu.Lock()
	t.cursor = int(math.Round(seconds * float64(t.rate)))
	t.mu.Unlock()
}

// Duration returns the decoded duration, or the declared one before decoding
func (t *Track) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.samples == nil {
		return t.declared
	}
	return float64(t.frames()) / float64(t.rate)
}

// Channels returns the interleaved channel count
func (t *Track) Channels() int {
	return t.channels
}

// Read copies the next samples into dst while playing and returns how many
// were written. A track that runs out pauses itself.
func (t *Track) Read(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused || t.closed {
		return 0
	}
	start := t.cursor * t.channels
	if start >= len(t.samples) {
		t.paused = true
		return 0
	}
	n := copy(dst, t.samples[start:])
	n -= n % t.channels
	t.cursor += n / t.channels
	if t.cursor >= t.frames() {
		t.paused = true
	}
	return n
}

// Close releases the decoded samples
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.paused = true
	t.samples = nil
	return nil
}

func (t *Track) frames() int {
	return len(t.samples) / t.channels
}

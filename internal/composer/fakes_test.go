package composer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/export"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// fakeVideo derives its position from the loop clock like the real decoder
type fakeVideo struct {
	clock     media.Clock
	duration  float64
	reject    bool
	paused    bool
	base      float64
	startedAt time.Duration
	plays     int
	closed    bool
	frame     *image.RGBA
}

func newFakeVideo(clock media.Clock, duration float64) *fakeVideo {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range frame.Pix {
		frame.Pix[i] = 0xff
	}
	return &fakeVideo{clock: clock, duration: duration, paused: true, frame: frame}
}

func (v *fakeVideo) Play(done func(error)) {
	if v.reject || v.closed {
		done(errors.New("play rejected"))
		return
	}
	v.plays++
	v.paused = false
	v.startedAt = v.clock.Now()
	done(nil)
}

func (v *fakeVideo) Pause() {
	v.base = v.Position()
	v.paused = true
}

func (v *fakeVideo) Paused() bool { return v.paused || v.Position() >= v.duration }

func (v *fakeVideo) Position() float64 {
	if v.paused {
		return v.base
	}
	p := v.base + (v.clock.Now() - v.startedAt).Seconds()
	if p > v.duration {
		p = v.duration
	}
	return p
}

func (v *fakeVideo) SetPosition(s float64) {
	v.base = s
	v.startedAt = v.clock.Now()
}

func (v *fakeVideo) Duration() float64  { return v.duration }
func (v *fakeVideo) Close() error       { v.closed = true; return nil }
func (v *fakeVideo) Frame() image.Image { return v.frame }

// fakeAudio plays a constant tone and advances only when pulled
type fakeAudio struct {
	rate     int
	channels int
	frames   int
	value    float32
	cursor   int
	paused   bool
	plays    int
	closed   bool
}

func (a *fakeAudio) Play(done func(error)) {
	if a.closed || a.cursor >= a.frames {
		done(errors.New("cannot play"))
		return
	}
	a.plays++
	a.paused = false
	done(nil)
}

func (a *fakeAudio) Pause()            { a.paused = true }
func (a *fakeAudio) Paused() bool      { return a.paused }
func (a *fakeAudio) Position() float64 { return float64(a.cursor) / float64(a.rate) }
func (a *fakeAudio) SetPosition(s float64) {
	a.cursor = int(s * float64(a.rate))
}
func (a *fakeAudio) Duration() float64 { return float64(a.frames) / float64(a.rate) }
func (a *fakeAudio) Close() error      { a.closed = true; return nil }

func (a *fakeAudio) Read(dst []float32) int {
	if a.paused {
		return 0
	}
	n := len(dst) / a.channels
	if left := a.frames - a.cursor; n > left {
		n = left
	}
	for i := 0; i < n*a.channels; i++ {
		dst[i] = a.value
	}
	a.cursor += n
	if a.cursor >= a.frames {
		a.paused = true
	}
	return n * a.channels
}

// loadingVideo is a fakeVideo whose metadata arrives when ready closes
type loadingVideo struct {
	*fakeVideo
	ready chan struct{}
}

func (v loadingVideo) Ready() <-chan struct{} { return v.ready }

type fakeFactory struct {
	rejectVideo bool
	loading     chan struct{}
	videos      []*fakeVideo
	clipAudio   []*fakeAudio
	narration   []*fakeAudio
}

func (f *fakeFactory) Video(clip models.Clip, clock media.Clock) media.VideoElement {
	v := newFakeVideo(clock, clip.Duration)
	v.reject = f.rejectVideo
	f.videos = append(f.videos, v)
	if f.loading != nil {
		return loadingVideo{v, f.loading}
	}
	return v
}

func (f *fakeFactory) ClipAudio(clip models.Clip, rate, channels int) AudioElement {
	a := &fakeAudio{rate: rate, channels: channels, frames: int(clip.Duration * float64(rate)), value: 0.1, paused: true}
	f.clipAudio = append(f.clipAudio, a)
	return a
}

func (f *fakeFactory) Narration(track models.NarrationTrack, rate, channels int) AudioElement {
	a := &fakeAudio{rate: rate, channels: channels, frames: int(track.Duration * float64(rate)), value: 0.5, paused: true}
	f.narration = append(f.narration, a)
	return a
}

// fakeRecorder counts what it receives; Stop may run off the loop
type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	format   export.Capture
	starts   int
	frames   int
	samples  int
	stops    int
	lastPix  color.RGBA
}

func (r *fakeRecorder) Start(ctx context.Context, format export.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.format = format
	return r.startErr
}

func (r *fakeRecorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.lastPix = frame.RGBAAt(0, 0)
	return nil
}

func (r *fakeRecorder) WriteAudio(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += len(samples)
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecorder) counts() (starts, frames, samples, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.frames, r.samples, r.stops
}

// gatedDecoder holds every decode until released or cancelled
type gatedDecoder struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func newGatedDecoder() *gatedDecoder {
	return &gatedDecoder{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (d *gatedDecoder) DecodePCM(ctx context.Context, inputPath string, rate, channels int) ([]float32, error) {
	d.started <- struct{}{}
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([]float32, rate*channels)
	for i := range out {
		out[i] = 0.5
	}
	return out, nil
}

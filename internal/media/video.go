package media

import (
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"time"
)

// Prober resolves clip metadata
type Prober interface {
	ExtractClipInfo(ctx context.Context, inputPath string) (*ClipInfo, error)
}

// FrameOpener starts raw frame decoding for a clip
type FrameOpener interface {
	OpenFrames(ctx context.Context, inputPath string, start, fps float64, width, height int) (*FrameStream, error)
}

const (
	probeTimeout = 15 * time.Second
	// Forward seeks further than this reopen the decoder instead of reading through.
	maxReadAhead = 2.0
)

// Video is a VideoElement decoding a clip through ffmpeg. Its position is
// derived from the loop clock; frames are pulled lazily up to that position
// whenever Frame is called. Load must be called before Play.
type Video struct {
	opener   FrameOpener
	prober   Prober
	clock    Clock
	src      string
	fps      float64
	declared float64

	ready chan struct{}

	mu        sync.Mutex
	info      *ClipInfo
	failed    error
	paused    bool
	closed    bool
	base      float64
	startedAt time.Duration

	stream      *FrameStream
	streamStart float64
	read        int
	frame       *image.RGBA
	eof         bool
	openFailed  bool
	failedAt    float64
}

// NewVideo creates a paused video element for src. declared is used as the
// duration until the clip has been probed.
func NewVideo(opener FrameOpener, prober Prober, clock Clock, src string, fps, declared float64) *Video {
	return &Video{
		opener:   opener,
		prober:   prober,
		clock:    clock,
		src:      src,
		fps:      fps,
		declared: declared,
		ready:    make(chan struct{}),
		paused:   true,
	}
}

// Load fetches the clip metadata in the background
func (v *Video) Load(ctx context.Context) {
	go func() {
		info, err := v.probe(ctx)
		v.mu.Lock()
		if err != nil {
			v.failed = err
		} else {
			v.info = info
		}
		v.mu.Unlock()
		close(v.ready)
	}()
}

// Ready is closed once the metadata fetch finished
func (v *Video) Ready() <-chan struct{} {
	return v.ready
}

// Play opens the decoder at the current position and reports once the first
// frame is available.
func (v *Video) Play(done func(error)) {
	go func() {
		<-v.ready
		v.mu.Lock()
		closed := v.closed
		failed := v.failed
		start := v.base
		info := v.info
		v.mu.Unlock()
		if closed {
			done(fmt.Errorf("video %s: element closed", v.src))
			return
		}
		if failed != nil {
			done(failed)
			return
		}

		stream, frame, err := v.open(info, start)
		if err != nil {
			done(err)
			return
		}

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			stream.Close()
			done(fmt.Errorf("video %s: element closed", v.src))
			return
		}
		if v.base == start {
			v.install(stream, start, frame)
		} else {
			// Seeked while opening; Frame reopens at the new position.
			stream.Close()
		}
		v.paused = false
		v.startedAt = v.clock.Now()
		v.mu.Unlock()

		done(nil)
	}()
}

// Pause freezes the position
func (v *Video) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.base = v.positionLocked()
	v.paused = true
}

// Paused reports whether the element is paused or has reached its end
func (v *Video) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused || v.endedLocked()
}

// Position returns the playback position in seconds
func (v *Video) Position() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionLocked()
}

// SetPosition moves the playback position
func (v *Video) SetPosition(seconds float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if d := v.durationLocked(); d > 0 && seconds > d {
		seconds = d
	}
	v.base = seconds
	if !v.paused {
		v.startedAt = v.clock.Now()
	}
}

// Duration returns the clip duration in seconds
func (v *Video) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.durationLocked()
}

// Frame decodes forward to the current position and returns that frame.
// Backward seeks and long forward jumps restart the decoder.
func (v *Video) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || v.failed != nil {
		return v.frameOrNil()
	}

	select {
	case <-v.ready:
	default:
		// Metadata still loading; the slot stays blank.
		return nil
	}

	pos := v.positionLocked()
	if v.openFailed && math.Abs(pos-v.failedAt) < maxReadAhead {
		return v.frameOrNil()
	}
	if v.stream == nil || pos < v.currentPTS()-1e-6 || pos > v.currentPTS()+maxReadAhead {
		stream, frame, err := v.open(v.info, pos)
		if err != nil {
			v.openFailed, v.failedAt = true, pos
			return v.frameOrNil()
		}
		v.openFailed = false
		v.install(stream, pos, frame)
	}

	for !v.eof && v.nextPTS() <= pos {
		if err := v.stream.ReadFrame(v.frame.Pix); err != nil {
			v.eof = true
			break
		}
		v.read++
	}

	return v.frameOrNil()
}

// Close stops the decoder
func (v *Video) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.paused = true
	if v.stream != nil {
		v.stream.Close()
		v.stream = nil
	}
	return nil
}

func (v *Video) probe(ctx context.Context) (*ClipInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	info, err := v.prober.ExtractClipInfo(ctx, v.src)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", v.src, err)
	}
	if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("probe %s: no video stream", v.src)
	}
	return info, nil
}

func (v *Video) open(info *ClipInfo, start float64) (*FrameStream, *image.RGBA, error) {
	stream, err := v.opener.OpenFrames(context.Background(), v.src, start, v.fps, info.Width, info.Height)
	if err != nil {
		return nil, nil, err
	}
	frame := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	if err := stream.ReadFrame(frame.Pix); err != nil {
		stream.Close()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("video %s: no frames at %.3fs", v.src, start)
		}
		return nil, nil, err
	}
	return stream, frame, nil
}

// install must be called with mu held
func (v *Video) install(stream *FrameStream, start float64, frame *image.RGBA) {
	if v.stream != nil {
		v.stream.Close()
	}
	v.stream = stream
	v.streamStart = start
	v.read = 1
	v.frame = frame
	v.eof = false
}

func (v *Video) currentPTS() float64 {
	return v.streamStart + float64(v.read-1)/v.fps
}

func (v *Video) nextPTS() float64 {
	return v.streamStart + float64(v.read)/v.fps
}

func (v *Video) frameOrNil() image.Image {
	if v.frame == nil {
		return nil
	}
	return v.frame
}

func (v *Video) positionLocked() float64 {
	if v.paused {
		return v.base
	}
	p := v.base + (v.clock.Now() - v.startedAt).Seconds()
	if d := v.durationLocked(); d > 0 && p > d {
		p = d
	}
	return p
}

func (v *Video) endedLocked() bool {
	d := v.durationLocked()
	return d > 0 && v.positionLocked() >= d
}

func (v *Video) durationLocked() float64 {
	if v.info != nil && v.info.Duration > 0 {
		return v.info.Duration
	}
	return v.declared
}

// Package composer runs the playback state machine: a single event loop that
// owns the timeline position, the two alternating media slots, narration
// sync, the rendering surface and the live capture path.
package composer

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/export"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/render"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/subtitle"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const eventBuffer = 64

type timer struct {
	at time.Duration
	fn func()
}

// Composer sequences clips, narration and subtitles into composited frames.
// All state below the channels is owned by the goroutine running Run; the
// public methods submit commands to it and wait for the result.
type Composer struct {
	opts    Options
	driver  FrameDriver
	factory MediaFactory
	logger  zerolog.Logger

	cmds    chan func()
	events  chan func()
	done    chan struct{}
	status  atomic.Pointer[Status]
	clockNs atomic.Int64

	spec     models.ComposeSpec
	tl       *timeline.Timeline
	tracks   []models.NarrationTrack
	segments []string
	overlay  *subtitle.Overlay
	surface  *render.Surface
	graph    *audio.Graph
	narr     *narrationEngine
	slots    [2]slot
	pos      Position
	now      time.Duration
	timers   []timer

	generating     bool
	exportingAudio bool
	exportCancel   context.CancelFunc
	rec            *recording
}

// New creates a composer with an empty timeline. Call Run to start its loop.
func New(opts Options, driver FrameDriver, factory MediaFactory, logger zerolog.Logger) *Composer {
	opts = opts.withDefaults()
	c := &Composer{
		opts:    opts,
		driver:  driver,
		factory: factory,
		logger:  logger.With().Str("component", "composer").Logger(),
		cmds:    make(chan func()),
		events:  make(chan func(), eventBuffer),
		done:    make(chan struct{}),
		spec:    models.ComposeSpec{}.Normalized(),
		tl:      timeline.New(nil, 0),
		surface: render.NewSurface(opts.Width, opts.Height),
		graph:   audio.NewGraph(opts.SampleRate, opts.Channels, audio.Discard),
	}
	c.overlay = subtitle.NewOverlay(c.spec.Subtitles.Mode)
	c.narr = newNarrationEngine(c.graph, c, c.logger)
	c.slots[SlotA] = slot{clip: -1}
	c.slots[SlotB] = slot{clip: -1}
	c.reset()
	return c
}

// Now implements media.Clock with the loop's current frame time
func (c *Composer) Now() time.Duration {
	return time.Duration(c.clockNs.Load())
}

// Post implements media.Poster. Closures posted after the loop exits are dropped.
func (c *Composer) Post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// Status returns the latest published snapshot
func (c *Composer) Status() Status {
	return *c.status.Load()
}

// Options returns the effective options
func (c *Composer) Options() Options {
	return c.opts
}

// Run drives the loop until ctx is done
func (c *Composer) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.shutdown()

	frames := c.driver.Frames(ctx)
	for {
		tick := frames
		if c.holdFrames() {
			tick = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			cmd()
		case fn := <-c.events:
			fn()
		case now, ok := <-tick:
			if !ok {
				return ctx.Err()
			}
			c.tick(now)
		}
	}
}

// holdFrames keeps a synchronous driver from advancing while nothing would
// change or while a media start is still resolving.
func (c *Composer) holdFrames() bool {
	if !c.driver.Synchronous() {
		return false
	}
	if c.pos.State != StatePlaying && c.rec == nil {
		return true
	}
	return c.slots[SlotA].pending() || c.slots[SlotB].pending() || c.narr.pending()
}

func (c *Composer) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.cmds <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Load replaces the whole composition and resets playback
func (c *Composer) Load(ctx context.Context, spec models.ComposeSpec) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		c.load(spec)
		return nil
	})
}

func (c *Composer) load(spec models.ComposeSpec) {
	c.applySpec(spec.Normalized())
	c.tracks = c.spec.Narration
	c.narr.load(c.factory, c.tracks)
	c.reset()
}

// SetClips replaces the clip list and resets playback
func (c *Composer) SetClips(ctx context.Context, clips []models.Clip) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		spec := c.spec
		spec.Clips = clips
		c.applySpec(spec)
		c.reset()
		return nil
	})
}

// SetTracks replaces the narration tracks
func (c *Composer) SetTracks(ctx context.Context, tracks []models.NarrationTrack) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		spec := c.spec
		spec.Narration = tracks
		spec = spec.Normalized()
		c.spec = spec
		c.tracks = spec.Narration
		c.narr.load(c.factory, c.tracks)
		if c.pos.State == StatePlaying || c.pos.State == StatePaused {
			c.narr.seek(c.tl, c.pos.Global, c.pos.State == StatePlaying)
		}
		c.publish()
		return nil
	})
}

// SetScript replaces the subtitle script
func (c *Composer) SetScript(ctx context.Context, script string) error {
	return c.do(ctx, func() error {
		c.spec.Script = script
		c.segments = subtitle.Split(script)
		return nil
	})
}

// Settings are the scalar composition options
type Settings struct {
	Overlap       float64
	Transition    models.TransitionMode
	Subtitles     models.SubtitleOptions
	MuteClipAudio bool
}

// SetOptions updates the scalar options. Changing the overlap changes the
// timeline and resets playback.
func (c *Composer) SetOptions(ctx context.Context, s Settings) error {
	return c.do(ctx, func() error {
		spec := c.spec
		spec.Overlap = s.Overlap
		spec.Transition = s.Transition
		spec.Subtitles = s.Subtitles
		spec.MuteClipAudio = s.MuteClipAudio
		spec = spec.Normalized()

		retime := spec.Overlap != c.spec.Overlap || spec.MuteClipAudio != c.spec.MuteClipAudio
		if retime && c.rec != nil {
			return ErrBusy
		}
		c.applySpec(spec)
		if retime {
			c.reset()
		}
		c.publish()
		return nil
	})
}

// SetGenerating flags that upstream audio generation is in progress
func (c *Composer) SetGenerating(ctx context.Context, on bool) error {
	return c.do(ctx, func() error {
		c.generating = on
		c.publish()
		return nil
	})
}

// Play starts or resumes playback; playing from the end restarts
func (c *Composer) Play(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		return c.play()
	})
}

// Pause suspends playback
func (c *Composer) Pause(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		c.pause()
		return nil
	})
}

// Toggle plays when paused and pauses when playing
func (c *Composer) Toggle(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		if c.pos.State == StatePlaying {
			c.pause()
			return nil
		}
		return c.play()
	})
}

// Seek jumps to global time t
func (c *Composer) Seek(ctx context.Context, t float64) error {
	return c.do(ctx, func() error {
		return c.seek(t)
	})
}

// Reset returns to the start of the timeline
func (c *Composer) Reset(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.rec != nil {
			return ErrBusy
		}
		c.reset()
		return nil
	})
}

// Snapshot seeks to t and returns a copy of the composited frame there. It
// waits, off the loop, for the active clips to finish loading.
func (c *Composer) Snapshot(ctx context.Context, t float64) (*image.RGBA, error) {
	var loading []<-chan struct{}
	err := c.do(ctx, func() error {
		if err := c.seek(t); err != nil {
			return err
		}
		loading = c.loadingVideos()
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ready := range loading {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var frame *image.RGBA
	err = c.do(ctx, func() error {
		c.draw()
		frame = image.NewRGBA(c.surface.Bounds())
		copy(frame.Pix, c.surface.Pix)
		return nil
	})
	return frame, err
}

// loadingVideos returns the readiness channels of slot videos whose
// metadata is still being fetched.
func (c *Composer) loadingVideos() []<-chan struct{} {
	var out []<-chan struct{}
	for i := range c.slots {
		r, ok := c.slots[i].frames.(interface{ Ready() <-chan struct{} })
		if !ok {
			continue
		}
		select {
		case <-r.Ready():
		default:
			out = append(out, r.Ready())
		}
	}
	return out
}

// Timeline returns the current timeline; it is replaced, never mutated
func (c *Composer) Timeline(ctx context.Context) (*timeline.Timeline, error) {
	var tl *timeline.Timeline
	err := c.do(ctx, func() error {
		tl = c.tl
		return nil
	})
	return tl, err
}

// ExportAudio renders the offline narration mixdown as WAV bytes. It runs
// on the caller's goroutine against a snapshot of the timeline and never
// touches the live transport.
func (c *Composer) ExportAudio(ctx context.Context, dec media.PCMDecoder, opts export.MixdownOptions) ([]byte, error) {
	var (
		tl     *timeline.Timeline
		tracks []models.NarrationTrack
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := c.do(ctx, func() error {
		var err error
		tl, tracks, err = c.beginAudioExport(cancel)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer c.do(context.Background(), func() error {
		c.exportingAudio = false
		c.exportCancel = nil
		c.publish()
		return nil
	})

	start := time.Now()
	wav, err := export.Mixdown(ctx, dec, tl, tracks, opts)
	if err != nil {
		metrics.RecordExport(string(models.ExportAudio), "failed", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordExport(string(models.ExportAudio), "completed", time.Since(start).Seconds())
	return wav, nil
}

// beginAudioExport raises the exporting-audio flag and snapshots what the
// mixdown needs. Runs on the loop.
func (c *Composer) beginAudioExport(cancel context.CancelFunc) (*timeline.Timeline, []models.NarrationTrack, error) {
	if c.exportingAudio || c.rec != nil {
		return nil, nil, ErrBusy
	}
	if c.tl.Empty() {
		return nil, nil, ErrNoClips
	}
	c.exportingAudio = true
	c.exportCancel = cancel
	c.publish()
	return c.tl, append([]models.NarrationTrack(nil), c.tracks...), nil
}

// Cancel stops a recording, keeping what was captured, or aborts an audio export
func (c *Composer) Cancel(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.exportCancel != nil {
			c.exportCancel()
		}
		if c.rec != nil {
			c.cancelRecording()
		}
		return nil
	})
}

func (c *Composer) applySpec(spec models.ComposeSpec) {
	c.spec = spec
	c.tl = timeline.New(spec.Clips, spec.Overlap)
	c.segments = subtitle.Split(spec.Script)
	c.overlay.Mode = spec.Subtitles.Mode
	if c.tl.Overlap != spec.Overlap {
		c.logger.Warn().
			Float64("requested", spec.Overlap).
			Float64("effective", c.tl.Overlap).
			Msg("transition overlap clamped")
	}
}

// loadSlot prepares the media for clip index in slot s, paused at its start
func (c *Composer) loadSlot(s Slot, index int) {
	sl := &c.slots[s]
	sl.release()
	if index < 0 || index >= c.tl.Len() {
		return
	}

	clip, _ := c.tl.Clip(index)
	sl.clip = index
	sl.def = clip
	if clip.IsVirtual() {
		return
	}

	logger := c.logger.With().Int("clip", index).Str("slot", s.String()).Logger()
	sl.frames = c.factory.Video(clip, c)
	sl.video = media.NewHandle(sl.frames, c, logger)

	if !c.spec.MuteClipAudio {
		el := c.factory.ClipAudio(clip, c.graph.Rate(), c.graph.Channels())
		sl.sound = media.NewHandle(el, c, logger)
		sl.voice = c.graph.Connect(el)
	}
}

func (c *Composer) reset() {
	c.slots[SlotA].release()
	c.slots[SlotB].release()
	c.narr.reset()
	c.timers = nil

	c.pos = Position{State: StateIdle, Active: SlotA}
	if !c.tl.Empty() {
		c.loadSlot(SlotA, 0)
		c.loadSlot(SlotB, 1)
	}
	c.publish()
}

func (c *Composer) play() error {
	if c.tl.Empty() {
		return ErrNoClips
	}
	switch c.pos.State {
	case StatePlaying:
		return nil
	case StateEnded:
		c.reset()
	}

	p := c.pos
	p.State = StatePlaying
	c.slots[p.Active].start()
	if p.Transitioning {
		c.slots[p.Active.Other()].start()
	}
	c.narr.resume()
	c.pos = p
	c.publish()
	return nil
}

func (c *Composer) pause() {
	if c.pos.State != StatePlaying {
		return
	}
	c.slots[SlotA].stop()
	c.slots[SlotB].stop()
	c.narr.pause()

	p := c.pos
	p.State = StatePaused
	c.pos = p
	c.publish()
}

func (c *Composer) seek(t float64) error {
	if c.rec != nil {
		return ErrBusy
	}
	if c.tl.Empty() {
		return ErrNoClips
	}

	total := c.tl.Total()
	if t < 0 {
		t = 0
	}
	if t > total {
		t = total
	}

	playing := c.pos.State == StatePlaying
	state := c.pos.State
	if state == StateEnded {
		state = StatePaused
	}

	index, local := c.tl.Locate(t)
	p := Position{State: state, Index: index, Local: local, Global: t, Active: c.pos.Active}

	c.slots[SlotA].release()
	c.slots[SlotB].release()
	c.loadSlot(p.Active, index)
	c.slots[p.Active].seek(local)

	clip, _ := c.tl.Clip(index)
	if index+1 < c.tl.Len() {
		if clip.Duration-local <= c.tl.Overlap {
			c.enterTransition(&p, local)
		} else {
			c.loadSlot(p.Active.Other(), index+1)
		}
	}

	if playing {
		c.slots[p.Active].start()
		if p.Transitioning {
			c.slots[p.Active.Other()].start()
		}
	}
	c.narr.seek(c.tl, t, playing)

	p.Progress = progressOf(t, total)
	c.pos = p
	c.publish()
	return nil
}

// enterTransition starts the next clip in the inactive slot, offset by how
// far the active clip already is into its overlap window.
func (c *Composer) enterTransition(p *Position, local float64) {
	clip, _ := c.tl.Clip(p.Index)
	in := p.Active.Other()
	sl := &c.slots[in]
	if sl.clip != p.Index+1 {
		c.loadSlot(in, p.Index+1)
	}

	offset := local - (clip.Duration - c.tl.Overlap)
	if offset < 0 {
		offset = 0
	}
	sl.seek(offset)
	if p.State == StatePlaying {
		sl.start()
	}
	p.Transitioning = true

	metrics.RecordTransition(string(c.spec.Transition))
	c.logger.Debug().Int("clip", p.Index).Float64("offset", offset).Msg("transition started")
}

// completeTransition retires the active clip and promotes the incoming one
func (c *Composer) completeTransition(p *Position) {
	old := p.Active
	retired := p.Index

	c.slots[old].release()
	c.narr.retire(retired)

	p.Active = old.Other()
	p.Index++
	p.Transitioning = false
	c.loadSlot(old, p.Index+1)

	c.logger.Debug().Int("clip", p.Index).Str("slot", p.Active.String()).Msg("transition complete")
}

func (c *Composer) tick(now time.Duration) {
	began := time.Now()

	dt := (now - c.now).Seconds()
	if dt < 0 {
		dt = 0
	}
	c.now = now
	c.clockNs.Store(int64(now))

	c.runTimers()
	if c.pos.State == StatePlaying {
		c.advance(dt)
	}

	if err := c.graph.Advance(now.Seconds()); err != nil {
		c.logger.Warn().Err(err).Msg("audio graph")
		if c.rec != nil {
			c.finishRecording(fmt.Errorf("%w: %v", export.ErrExportFailed, err))
		}
	}

	c.draw()
	c.capture()
	c.publish()

	metrics.RecordFrame(time.Since(began).Seconds())
}

func (c *Composer) advance(dt float64) {
	c.slots[SlotA].advance(dt)
	c.slots[SlotB].advance(dt)

	p := c.pos
	clip, _ := c.tl.Clip(p.Index)
	local := c.slots[p.Active].timer
	remaining := clip.Duration - local

	if !p.Transitioning && remaining <= c.tl.Overlap && p.Index+1 < c.tl.Len() {
		c.enterTransition(&p, local)
	}

	global := c.tl.Start(p.Index) + local
	if global < c.pos.Global {
		global = c.pos.Global
	}
	c.narr.sync(c.tl, global, c.now.Seconds())

	if p.Transitioning && remaining <= 0 {
		c.completeTransition(&p)
		local = c.slots[p.Active].timer
		if g := c.tl.Start(p.Index) + local; g > global {
			global = g
		}
		c.narr.sync(c.tl, global, c.now.Seconds())
	}

	total := c.tl.Total()
	p.Local = local
	p.Global = global
	if global >= total {
		p.Global = total
	}
	p.Progress = progressOf(p.Global, total)
	c.pos = p

	if global >= total {
		c.reachEnd()
	}
}

// reachEnd stops the clock. A recording keeps capturing through the grace
// period so trailing narration is not cut off.
func (c *Composer) reachEnd() {
	c.slots[SlotA].stop()
	c.slots[SlotB].stop()

	p := c.pos
	p.State = StateEnded
	p.Progress = 100
	c.pos = p

	if c.rec != nil {
		c.recordingEnded()
		return
	}
	c.narr.pause()
}

func (c *Composer) draw() {
	s := c.surface
	s.Clear()
	if c.tl.Empty() {
		return
	}

	p := c.pos
	active := &c.slots[p.Active]
	clip, _ := c.tl.Clip(p.Index)
	local := active.timer

	if p.Transitioning {
		layers := render.Blend(c.spec.Transition, render.Progress(clip.Duration-local, c.tl.Overlap))
		c.drawSlot(active, layers.Active)
		c.drawSlot(&c.slots[p.Active.Other()], layers.Incoming)
	} else {
		c.drawSlot(active, 1)
	}

	if c.spec.Subtitles.Enabled && p.Index < len(c.segments) {
		c.overlay.Draw(s, c.segments[p.Index], local, clip.Duration)
	}
}

func (c *Composer) drawSlot(sl *slot, alpha float64) {
	if sl.empty() || alpha <= 0 {
		return
	}
	if sl.def.IsVirtual() {
		c.surface.DrawPlaceholder(sl.clip, sl.def.Label, alpha)
		return
	}
	if frame := sl.frames.Frame(); frame != nil {
		c.surface.DrawCover(frame, alpha)
	}
}

// after runs fn on the loop once loop time has advanced by d
func (c *Composer) after(d time.Duration, fn func()) {
	c.timers = append(c.timers, timer{at: c.now + d, fn: fn})
}

func (c *Composer) runTimers() {
	for len(c.timers) > 0 {
		due := -1
		for i, t := range c.timers {
			if t.at <= c.now && (due < 0 || t.at < c.timers[due].at) {
				due = i
			}
		}
		if due < 0 {
			return
		}
		fn := c.timers[due].fn
		c.timers = append(c.timers[:due], c.timers[due+1:]...)
		fn()
	}
}

func (c *Composer) publish() {
	st := &Status{
		Position:       c.pos,
		Total:          c.tl.Total(),
		Clips:          c.tl.Len(),
		Generating:     c.generating,
		Recording:      c.rec != nil,
		ExportingAudio: c.exportingAudio,
	}
	c.status.Store(st)
}

func (c *Composer) shutdown() {
	if c.rec != nil {
		c.finishRecording(ErrStopped)
	}
	c.slots[SlotA].release()
	c.slots[SlotB].release()
	c.narr.close()
}

func progressOf(global, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := global / total * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

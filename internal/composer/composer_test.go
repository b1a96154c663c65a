package composer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/export"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const testFPS = 10

func testOptions() Options {
	return Options{
		FPS:        testFPS,
		Width:      36,
		Height:     64,
		Warmup:     200 * time.Millisecond,
		RecordLead: 100 * time.Millisecond,
		Grace:      300 * time.Millisecond,
		SampleRate: 1000,
		Channels:   1,
	}
}

func newTestComposer(t *testing.T, spec models.ComposeSpec) (*Composer, *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())
	c.load(spec)
	return c, f
}

// drain runs every queued media completion
func (c *Composer) drain() {
	for {
		select {
		case fn := <-c.events:
			fn()
		default:
			return
		}
	}
}

// step advances the loop by n frames without a running driver
func (c *Composer) step(n int) {
	for i := 0; i < n; i++ {
		c.drain()
		frame := int64(c.now/(time.Second/testFPS)) + 1
		c.tick(FrameTime(frame, testFPS))
		c.drain()
	}
}

func virtualClips(durations ...float64) []models.Clip {
	out := make([]models.Clip, len(durations))
	for i, d := range durations {
		out[i] = models.Clip{ID: fmt.Sprintf("v%d", i), Duration: d, Label: fmt.Sprintf("card %d", i)}
	}
	return out
}

func realClips(durations ...float64) []models.Clip {
	out := make([]models.Clip, len(durations))
	for i, d := range durations {
		out[i] = models.Clip{ID: fmt.Sprintf("r%d", i), URL: fmt.Sprintf("clip%d.mp4", i), Duration: d}
	}
	return out
}

func narrationFor(durations ...float64) []models.NarrationTrack {
	out := make([]models.NarrationTrack, len(durations))
	for i, d := range durations {
		out[i] = models.NarrationTrack{Index: i, URL: fmt.Sprintf("vo%d.mp3", i), Duration: d}
	}
	return out
}

func TestReset_Idempotent(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(3, 3), Overlap: 1})

	require.NoError(t, c.play())
	c.step(12)
	require.Greater(t, c.Status().Global, 0.0)

	c.reset()
	once := c.Status()
	c.reset()
	twice := c.Status()

	assert.Equal(t, once, twice)
	assert.Equal(t, StateIdle, twice.State)
	assert.Equal(t, 0, twice.Index)
	assert.Equal(t, 0.0, twice.Local)
	assert.Equal(t, 0.0, twice.Progress)
	assert.False(t, twice.Transitioning)
	assert.Equal(t, SlotA, twice.Active)
}

func TestPlay_NoClips(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{})
	assert.ErrorIs(t, c.play(), ErrNoClips)
	assert.ErrorIs(t, c.seek(1), ErrNoClips)
	assert.Equal(t, 15.0, c.Status().Total)
}

func TestPlayback_GlobalTimeMonotonic(t *testing.T) {
	spec := models.ComposeSpec{
		Clips:   append(realClips(2), virtualClips(2, 2)...),
		Overlap: 0.5,
	}
	c, _ := newTestComposer(t, spec)
	require.NoError(t, c.play())

	last := -1.0
	for i := 0; i < 80; i++ {
		c.step(1)
		st := c.Status()
		assert.GreaterOrEqual(t, st.Global, last, "tick %d", i)
		assert.GreaterOrEqual(t, st.Progress, 0.0)
		assert.LessOrEqual(t, st.Progress, 100.0)
		last = st.Global
	}

	st := c.Status()
	assert.Equal(t, StateEnded, st.State)
	assert.Equal(t, 100.0, st.Progress)
	assert.InDelta(t, 5.0, st.Global, 1e-9)
	assert.Equal(t, 2, st.Index)
}

func TestPlayback_TransitionWithVideo(t *testing.T) {
	c, f := newTestComposer(t, models.ComposeSpec{Clips: realClips(3, 3), Overlap: 1, MuteClipAudio: true})
	require.NoError(t, c.play())

	c.step(19)
	assert.False(t, c.Status().Transitioning)

	// At 2.0s the active clip has 1s left, which equals the overlap.
	c.step(1)
	st := c.Status()
	assert.True(t, st.Transitioning)
	assert.Equal(t, 0, st.Index)
	incoming := c.slots[SlotB]
	assert.Equal(t, 1, incoming.clip)
	assert.InDelta(t, 0, incoming.timer, 1e-9)

	c.step(5)
	assert.InDelta(t, 0.5, c.slots[SlotB].video.Position(), 1e-9)

	c.step(5)
	st = c.Status()
	assert.False(t, st.Transitioning)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, SlotB, st.Active)
	assert.InDelta(t, 1.0, st.Local, 1e-9)
	assert.InDelta(t, 3.0, st.Global, 1e-9)

	// The retired clip's media was closed and the slot emptied.
	require.Len(t, f.videos, 2)
	assert.True(t, f.videos[0].closed)
	assert.True(t, c.slots[SlotA].empty())
}

func TestPlayback_VirtualTransition(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(3, 3), Overlap: 1})
	require.NoError(t, c.play())

	c.step(25)
	st := c.Status()
	assert.True(t, st.Transitioning)
	assert.Equal(t, 1, c.slots[st.Active.Other()].clip)

	c.step(10)
	st = c.Status()
	assert.False(t, st.Transitioning)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, SlotB, st.Active)
	assert.InDelta(t, 3.5, st.Global, 1e-6)
}

func TestPlayback_RejectedVideoStillAdvances(t *testing.T) {
	f := &fakeFactory{rejectVideo: true}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())
	c.load(models.ComposeSpec{Clips: realClips(2, 2), Overlap: 0.5, MuteClipAudio: true})

	require.NoError(t, c.play())
	c.step(10)

	st := c.Status()
	assert.InDelta(t, 1.0, st.Local, 1e-6)
	assert.Equal(t, 1, c.slots[SlotA].video.Failures())
}

func TestPauseResume(t *testing.T) {
	c, f := newTestComposer(t, models.ComposeSpec{Clips: realClips(4), MuteClipAudio: true})
	require.NoError(t, c.play())
	c.step(10)

	c.pause()
	paused := c.Status()
	assert.Equal(t, StatePaused, paused.State)
	c.step(10)
	assert.Equal(t, paused.Global, c.Status().Global, "clock is suspended while paused")
	assert.True(t, f.videos[0].paused)

	require.NoError(t, c.play())
	c.step(5)
	assert.InDelta(t, paused.Global+0.5, c.Status().Global, 1e-9)
}

func TestSeek_LandsOnClipBoundary(t *testing.T) {
	spec := models.ComposeSpec{
		Clips:     virtualClips(10, 8),
		Overlap:   1,
		Narration: narrationFor(10, 8),
	}
	c, f := newTestComposer(t, spec)

	assert.Equal(t, 17.0, c.Status().Total)
	assert.Equal(t, 9.0, c.tl.Start(1))

	require.NoError(t, c.seek(9))
	st := c.Status()
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, 0.0, st.Local)
	assert.Equal(t, 9.0, st.Global)
	assert.False(t, st.Transitioning)

	// Track 0 still narrates until its natural stop at 10s; track 1 starts here.
	require.Len(t, f.narration, 2)
	assert.InDelta(t, 9.0, f.narration[0].Position(), 1e-9)
	assert.InDelta(t, 0.0, f.narration[1].Position(), 1e-9)
	for i, n := range c.narr.tracks {
		require.NotNil(t, n.voice, "track %d wired on seek", i)
		assert.Equal(t, 1.0, n.voice.Gain.ValueAt(100), "track %d gain", i)
		assert.False(t, n.handle.Playing(), "transport is not playing")
	}

	require.NoError(t, c.play())
	c.drain()
	assert.True(t, c.narr.tracks[0].handle.Playing())
	assert.True(t, c.narr.tracks[1].handle.Playing())
}

func TestSeek_OutsideWindowRetiresTrack(t *testing.T) {
	spec := models.ComposeSpec{
		Clips:     virtualClips(4, 4, 4),
		Overlap:   1,
		Narration: narrationFor(4, 4, 4),
	}
	c, f := newTestComposer(t, spec)
	require.NoError(t, c.play())
	c.step(5)
	require.Equal(t, 1, f.narration[0].plays)

	// Clip 1 owns [3, 6); only track 1's window [3, 7) contains 4.5.
	require.NoError(t, c.seek(4.5))
	c.drain()
	st := c.Status()
	assert.Equal(t, 1, st.Index)
	assert.InDelta(t, 1.5, st.Local, 1e-9)
	assert.False(t, st.Transitioning)

	assert.False(t, c.narr.tracks[0].handle.Playing())
	assert.Equal(t, 0.0, f.narration[0].Position())
	assert.Equal(t, 0.0, c.narr.tracks[0].voice.Gain.ValueAt(100))
	assert.True(t, c.narr.tracks[1].handle.Playing())
	assert.InDelta(t, 1.5, f.narration[1].Position(), 1e-9)
	assert.False(t, c.narr.tracks[2].handle.Playing())
	assert.Equal(t, 0.0, f.narration[2].Position())

	// Track 0 still narrates over the start of clip 1 until its own stop at 4s.
	require.NoError(t, c.seek(3.5))
	c.drain()
	assert.True(t, c.narr.tracks[0].handle.Playing())
	assert.InDelta(t, 3.5, f.narration[0].Position(), 1e-9)
	assert.Equal(t, 1.0, c.narr.tracks[0].voice.Gain.ValueAt(100))
}

func TestNarration_StartPolicyAndFade(t *testing.T) {
	spec := models.ComposeSpec{
		Clips:     virtualClips(2, 2),
		Overlap:   0.5,
		Narration: narrationFor(2, 2),
	}
	c, f := newTestComposer(t, spec)
	require.NoError(t, c.play())

	c.step(1)
	require.Len(t, f.narration, 2)
	assert.Equal(t, 1, f.narration[0].plays)
	assert.Equal(t, 0, f.narration[1].plays)

	g0 := c.narr.tracks[0].voice.Gain
	assert.InDelta(t, 0, g0.ValueAt(0.1), 1e-9)
	assert.InDelta(t, 1, g0.ValueAt(0.2), 1e-9)

	// Track 1 starts once global time reaches 1.5s.
	c.step(13)
	assert.Equal(t, 0, f.narration[1].plays)
	c.step(3)
	assert.Equal(t, 1, f.narration[1].plays)
	g1 := c.narr.tracks[1].voice.Gain
	assert.InDelta(t, 0, g1.ValueAt(1.0), 1e-9)
	assert.InDelta(t, 1, g1.ValueAt(3.0), 1e-9)

	// Retiring clip 0 at 2s stops and rewinds its narration.
	c.step(6)
	assert.Equal(t, 1, c.Status().Index)
	assert.False(t, c.narr.tracks[0].handle.Playing())
	assert.Equal(t, 0.0, f.narration[0].Position())
	assert.Equal(t, 0.0, g0.ValueAt(100))
	assert.Equal(t, 1, f.narration[0].plays, "retired track is not restarted")
}

func TestClipAudioFollowsSlot(t *testing.T) {
	c, f := newTestComposer(t, models.ComposeSpec{Clips: realClips(2, 2), Overlap: 0.5})
	require.Len(t, f.clipAudio, 2, "both slots preload clip audio")

	require.NoError(t, c.play())
	c.step(1)
	assert.Equal(t, 1, f.clipAudio[0].plays)
	assert.Equal(t, 0, f.clipAudio[1].plays)

	c.pause()
	assert.True(t, f.clipAudio[0].paused)
}

func TestRecording_SeekIsBusy(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(2, 2), Overlap: 0.5})
	rec := &fakeRecorder{}

	done, err := c.startRecording(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, c.Status().Recording)

	assert.ErrorIs(t, c.seek(1), ErrBusy)
	_, err = c.startRecording(context.Background(), rec)
	assert.ErrorIs(t, err, ErrBusy)

	// Cancelling during warm-up aborts without starting the recorder.
	c.cancelRecording()
	require.Eventually(t, func() bool {
		c.drain()
		return !c.Status().Recording
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, <-done, context.Canceled)

	starts, _, _, stops := rec.counts()
	assert.Equal(t, 0, starts)
	assert.Equal(t, 0, stops)
}

func TestRecording_CancelFinalizesCapture(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(5), Overlap: 0})
	rec := &fakeRecorder{}

	done, err := c.startRecording(context.Background(), rec)
	require.NoError(t, err)

	c.step(10)
	assert.Equal(t, StatePlaying, c.Status().State)

	c.cancelRecording()
	require.Eventually(t, func() bool {
		c.drain()
		return !c.Status().Recording
	}, time.Second, time.Millisecond)
	require.NoError(t, <-done)

	starts, frames, samples, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Greater(t, frames, 0)
	assert.Greater(t, samples, 0)
}

func TestRecording_StartFailure(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(2)})
	rec := &fakeRecorder{startErr: errors.New("no encoder")}

	done, err := c.startRecording(context.Background(), rec)
	require.NoError(t, err)
	c.step(3)

	require.Eventually(t, func() bool {
		c.drain()
		return !c.Status().Recording
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, <-done, export.ErrExportFailed)
}

func TestRun_RecordFullPass(t *testing.T) {
	spec := models.ComposeSpec{
		Clips:     virtualClips(1, 1),
		Overlap:   0.2,
		Narration: narrationFor(1, 1),
	}
	f := &fakeFactory{}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	require.NoError(t, c.Load(ctx, spec))
	rec := &fakeRecorder{}
	require.NoError(t, c.Record(ctx, rec))

	starts, frames, samples, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	// 0.1s lead, 1.8s of timeline and 0.3s of grace at 10 fps.
	assert.InDelta(t, 22, frames, 2)
	assert.Greater(t, samples, 1800)
	assert.Equal(t, export.Capture{Width: 36, Height: 64, FPS: testFPS, SampleRate: 1000, Channels: 1}, rec.format)

	st := c.Status()
	assert.False(t, st.Recording)
	assert.Equal(t, StateEnded, st.State)
	assert.Equal(t, 100.0, st.Progress)

	// The transport is usable again once the recording finished.
	require.NoError(t, c.Seek(ctx, 0.5))
	assert.Equal(t, StatePaused, c.Status().State)

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
}

func TestRun_CommandsAfterStop(t *testing.T) {
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, &fakeFactory{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	cancel()
	<-runErr

	assert.ErrorIs(t, c.Play(context.Background()), ErrStopped)
}

func TestSnapshot(t *testing.T) {
	f := &fakeFactory{}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.Load(ctx, models.ComposeSpec{Clips: virtualClips(2, 2), Overlap: 0.5}))
	frame, err := c.Snapshot(ctx, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 36, frame.Bounds().Dx())
	assert.Equal(t, 64, frame.Bounds().Dy())

	st := c.Status()
	assert.Equal(t, 1, st.Index)
	assert.InDelta(t, 2.5, st.Global, 1e-9)
}

func TestSnapshot_WaitsForVideoLoad(t *testing.T) {
	f := &fakeFactory{loading: make(chan struct{})}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Run(ctx)
	require.NoError(t, c.Load(ctx, models.ComposeSpec{Clips: realClips(2, 2)}))

	got := make(chan error, 1)
	go func() {
		_, err := c.Snapshot(ctx, 0.5)
		got <- err
	}()

	select {
	case err := <-got:
		t.Fatalf("snapshot returned before the clip loaded: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	// The loop keeps serving commands while the snapshot waits.
	_, err := c.Timeline(ctx)
	require.NoError(t, err)

	close(f.loading)
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("snapshot did not finish after load")
	}
}

func TestSnapshot_LoadWaitHonorsContext(t *testing.T) {
	f := &fakeFactory{loading: make(chan struct{})}
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, f, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	require.NoError(t, c.Load(ctx, models.ComposeSpec{Clips: realClips(2)}))

	sctx, scancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer scancel()
	frame, err := c.Snapshot(sctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, frame)
}

func TestSetGenerating(t *testing.T) {
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, &fakeFactory{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.SetGenerating(ctx, true))
	assert.True(t, c.Status().Generating)
	assert.True(t, c.Status().Busy())
	require.NoError(t, c.SetGenerating(ctx, false))
	assert.False(t, c.Status().Busy())
}

func TestSetOptions_ClampsOverlap(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(2, 4)})
	c.applySpec(models.ComposeSpec{Clips: virtualClips(2, 4), Overlap: 3}.Normalized())
	assert.Equal(t, 1.0, c.tl.Overlap)
	assert.Equal(t, 5.0, c.tl.Total())
}

func startLoop(t *testing.T, spec models.ComposeSpec) (*Composer, context.Context) {
	t.Helper()
	c := New(testOptions(), SteppedDriver{FPS: testFPS}, &fakeFactory{}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	go c.Run(ctx)
	require.NoError(t, c.Load(ctx, spec))
	return c, ctx
}

type audioResult struct {
	wav []byte
	err error
}

func exportAsync(ctx context.Context, c *Composer, dec *gatedDecoder) <-chan audioResult {
	out := make(chan audioResult, 1)
	go func() {
		wav, err := c.ExportAudio(ctx, dec, export.MixdownOptions{SampleRate: 1000})
		out <- audioResult{wav, err}
	}()
	return out
}

func TestExportAudio_FlagWhileRunning(t *testing.T) {
	c, ctx := startLoop(t, models.ComposeSpec{Clips: virtualClips(1, 1), Overlap: 0.2, Narration: narrationFor(1)})
	dec := newGatedDecoder()

	res := exportAsync(ctx, c, dec)
	<-dec.started
	assert.True(t, c.Status().ExportingAudio)
	assert.True(t, c.Status().Busy())

	_, err := c.ExportAudio(ctx, dec, export.MixdownOptions{SampleRate: 1000})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Record(ctx, &fakeRecorder{}), ErrBusy)

	close(dec.release)
	r := <-res
	require.NoError(t, r.err)
	// 1.8s of timeline at 1000 Hz mono, 16-bit.
	assert.Len(t, r.wav, 44+1800*2)
	assert.False(t, c.Status().ExportingAudio)
}

func TestExportAudio_DecodeFailureClearsFlag(t *testing.T) {
	c, ctx := startLoop(t, models.ComposeSpec{Clips: virtualClips(2), Narration: narrationFor(1)})
	dec := newGatedDecoder()
	dec.err = errors.New("boom")
	close(dec.release)

	_, err := c.ExportAudio(ctx, dec, export.MixdownOptions{SampleRate: 1000})
	assert.ErrorIs(t, err, export.ErrExportFailed)
	assert.False(t, c.Status().ExportingAudio)

	// The flag is free for the next export.
	dec.err = nil
	wav, err := c.ExportAudio(ctx, dec, export.MixdownOptions{SampleRate: 1000})
	require.NoError(t, err)
	assert.Len(t, wav, 44+2000*2)
}

func TestExportAudio_CancelAborts(t *testing.T) {
	c, ctx := startLoop(t, models.ComposeSpec{Clips: virtualClips(2), Narration: narrationFor(1)})
	dec := newGatedDecoder()

	res := exportAsync(ctx, c, dec)
	<-dec.started
	require.NoError(t, c.Cancel(ctx))

	r := <-res
	assert.ErrorIs(t, r.err, export.ErrExportFailed)
	assert.Nil(t, r.wav)
	assert.False(t, c.Status().ExportingAudio)
}

func TestExportAudio_NoClips(t *testing.T) {
	c, ctx := startLoop(t, models.ComposeSpec{Narration: narrationFor(1)})
	dec := newGatedDecoder()
	close(dec.release)

	wav, err := c.ExportAudio(ctx, dec, export.MixdownOptions{SampleRate: 1000})
	assert.ErrorIs(t, err, ErrNoClips)
	assert.Nil(t, wav)
	assert.Empty(t, dec.started)
	assert.False(t, c.Status().ExportingAudio)
}

func TestExportAudio_BusyWhileRecording(t *testing.T) {
	c, _ := newTestComposer(t, models.ComposeSpec{Clips: virtualClips(2, 2), Overlap: 0.5, Narration: narrationFor(1)})

	done, err := c.startRecording(context.Background(), &fakeRecorder{})
	require.NoError(t, err)

	_, _, err = c.beginAudioExport(func() {})
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, c.Status().ExportingAudio)

	c.cancelRecording()
	require.Eventually(t, func() bool {
		c.drain()
		return !c.Status().Recording
	}, time.Second, time.Millisecond)
	<-done
}

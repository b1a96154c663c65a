package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// toneDecoder returns a constant-valued buffer per source, keyed by URL
type toneDecoder struct {
	mu      sync.Mutex
	seconds map[string]float64
	fail    map[string]error
	calls   int
}

func (d *toneDecoder) DecodePCM(ctx context.Context, inputPath string, rate, channels int) ([]float32, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if err := d.fail[inputPath]; err != nil {
		return nil, err
	}
	secs, ok := d.seconds[inputPath]
	if !ok {
		return nil, fmt.Errorf("unknown source %s", inputPath)
	}
	out := make([]float32, int(secs*float64(rate))*channels)
	for i := range out {
		out[i] = 0.5
	}
	return out, nil
}

func decodeWAV(t *testing.T, data []byte) *goaudio.IntBuffer {
	t.Helper()
	d := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, d.IsValidFile())
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return buf
}

func clips(durations ...float64) []models.Clip {
	out := make([]models.Clip, len(durations))
	for i, d := range durations {
		out[i] = models.Clip{ID: fmt.Sprintf("c%d", i), Duration: d}
	}
	return out
}

func tracks(urls ...string) []models.NarrationTrack {
	out := make([]models.NarrationTrack, len(urls))
	for i, u := range urls {
		out[i] = models.NarrationTrack{Index: i, URL: u}
	}
	return out
}

func TestMixdown_Deterministic(t *testing.T) {
	dec := &toneDecoder{seconds: map[string]float64{"a.mp3": 4, "b.mp3": 3, "c.mp3": 6}}
	tl := timeline.New(clips(5, 4, 6), 1)
	opts := MixdownOptions{SampleRate: 8000}

	first, err := Mixdown(context.Background(), dec, tl, tracks("a.mp3", "b.mp3", "c.mp3"), opts)
	require.NoError(t, err)
	second, err := Mixdown(context.Background(), dec, tl, tracks("a.mp3", "b.mp3", "c.mp3"), opts)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "mixdown output must be byte-identical")
	assert.Equal(t, 6, dec.calls)
}

func TestMixdown_CoversTotalDuration(t *testing.T) {
	dec := &toneDecoder{seconds: map[string]float64{"a": 1}}
	tl := timeline.New(clips(10, 8), 1)

	wav, err := Mixdown(context.Background(), dec, tl, tracks("a"), MixdownOptions{SampleRate: 1000, Channels: 2})
	require.NoError(t, err)

	decoded := decodeWAV(t, wav)
	assert.Equal(t, 1000, decoded.Format.SampleRate)
	assert.Equal(t, 2, decoded.Format.NumChannels)
	assert.Len(t, decoded.Data, 17*1000*2)
}

func TestRender_Envelope(t *testing.T) {
	const rate = 1000
	tl := timeline.New(clips(5, 4), 1)

	one := make([]float32, 10*rate)
	for i := range one {
		one[i] = 1
	}
	out := Render(tl, [][]float32{one, one}, rate, 1)
	require.Len(t, out, 8*rate)

	at := func(sec float64) float32 { return out[int(sec*rate)] }

	// Track 0: fade in over 0.1s from 0, hold, fade out before its stop at 5s.
	assert.InDelta(t, 0, at(0), 1e-6)
	assert.InDelta(t, 0.5, at(0.05), 0.02)
	assert.InDelta(t, 1, at(2), 1e-6)

	// Track 1 starts at 4s with a 0.4s fade; both tracks overlap until 5s.
	assert.InDelta(t, 1+0.5, at(4.2), 0.02)
	assert.InDelta(t, 0.5+1, at(4.9), 0.02)

	// After track 0 stops only track 1 remains; it fades out before 8s.
	assert.InDelta(t, 1, at(6), 1e-6)
	assert.InDelta(t, 0.5, at(7.9), 0.02)
}

func TestRender_IgnoresTracksBeyondClips(t *testing.T) {
	tl := timeline.New(clips(2), 0)
	buf := []float32{1, 1, 1, 1}
	out := Render(tl, [][]float32{nil, buf}, 2, 1)
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
}

func TestMixdown_DecodeFailure(t *testing.T) {
	dec := &toneDecoder{
		seconds: map[string]float64{"a": 1},
		fail:    map[string]error{"b": errors.New("404")},
	}
	tl := timeline.New(clips(3, 3), 0.5)

	_, err := Mixdown(context.Background(), dec, tl, tracks("a", "b"), MixdownOptions{SampleRate: 100})
	assert.ErrorIs(t, err, ErrExportFailed)
}

func TestMixdown_NoTracks(t *testing.T) {
	_, err := Mixdown(context.Background(), &toneDecoder{}, timeline.New(clips(3), 0), nil, MixdownOptions{})
	assert.ErrorIs(t, err, ErrExportFailed)
}

func TestMixdown_EmptyTimeline(t *testing.T) {
	dec := &toneDecoder{seconds: map[string]float64{"a": 1}}

	_, err := Mixdown(context.Background(), dec, timeline.New(nil, 1), tracks("a"), MixdownOptions{SampleRate: 100})
	assert.ErrorIs(t, err, ErrExportFailed)
	assert.Equal(t, 0, dec.calls)

	_, err = Mixdown(context.Background(), dec, nil, tracks("a"), MixdownOptions{SampleRate: 100})
	assert.ErrorIs(t, err, ErrExportFailed)
}

func TestConcat(t *testing.T) {
	dec := &toneDecoder{seconds: map[string]float64{"a": 1, "b": 0.5}}

	wav, err := Concat(context.Background(), dec, tracks("a", "b"), MixdownOptions{SampleRate: 100})
	require.NoError(t, err)

	decoded := decodeWAV(t, wav)
	assert.Len(t, decoded.Data, 150)
	assert.Equal(t, 1, decoded.Format.NumChannels)
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 44100*13, FrameCount(13, 44100))
	assert.Equal(t, 2, FrameCount(0.15, 10))
	assert.Equal(t, 0, FrameCount(0, 10))
}

func TestEnvelope_ShortTrack(t *testing.T) {
	g := audio.NewParam(0)
	Envelope(g, 1, 2, 2.3)
	// The fade-out begins before the fade-in completes; values stay within [0, 1].
	for _, at := range []float64{2, 2.05, 2.1, 2.2, 2.3} {
		v := g.ValueAt(at)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 0, g.ValueAt(2.3), 1e-9)
}

func TestCodecs(t *testing.T) {
	v, a, _ := Codecs(ContainerWebM)
	assert.Equal(t, "libvpx-vp9", v)
	assert.Equal(t, "libopus", a)

	v, a, extra := Codecs(ContainerMP4)
	assert.Equal(t, "libx264", v)
	assert.Equal(t, "aac", a)
	assert.Contains(t, extra, "+faststart")
}

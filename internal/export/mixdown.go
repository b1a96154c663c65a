package export

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// Offline envelope windows
const (
	firstTrackFadeIn = 0.1
	trackFadeIn      = 0.4
	trackFadeOut     = 0.2
)

// DefaultSampleRate is the offline render rate
const DefaultSampleRate = 44100

// MixdownOptions configures the offline render
type MixdownOptions struct {
	SampleRate int
	Channels   int
}

func (o MixdownOptions) withDefaults() MixdownOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels != 2 {
		o.Channels = 1
	}
	return o
}

// OfflineFadeIn returns the offline fade-in window for track i
func OfflineFadeIn(i int) float64 {
	if i == 0 {
		return firstTrackFadeIn
	}
	return trackFadeIn
}

// Envelope schedules the offline gain curve for track i: 0 to 1 over the
// fade-in from start, hold, then 1 to 0 over the fade-out ending at stop.
func Envelope(gain *audio.Param, i int, start, stop float64) {
	gain.SetValueAtTime(0, start)
	gain.LinearRampToValueAtTime(1, start+OfflineFadeIn(i))
	gain.SetValueAtTime(1, stop-trackFadeOut)
	gain.LinearRampToValueAtTime(0, stop)
}

// FrameCount returns the number of frames covering seconds at rate
func FrameCount(seconds float64, rate int) int {
	return int(math.Ceil(seconds*float64(rate) - 1e-9))
}

// decodeAll decodes every track in parallel at rate and channels
func decodeAll(ctx context.Context, dec media.PCMDecoder, tracks []models.NarrationTrack, rate, channels int) ([][]float32, error) {
	buffers := make([][]float32, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tracks {
		i, t := i, t
		g.Go(func() error {
			samples, err := dec.DecodePCM(gctx, t.URL, rate, channels)
			if err != nil {
				return fmt.Errorf("decode narration %d: %w", i, err)
			}
			buffers[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return buffers, nil
}

// Mixdown renders the narration tracks against the timeline into WAV bytes.
// Each track is placed at its timeline start with the offline envelope and
// cut at its natural stop. The output covers exactly the total duration and
// is byte-identical for identical inputs.
func Mixdown(ctx context.Context, dec media.PCMDecoder, tl *timeline.Timeline, tracks []models.NarrationTrack, opts MixdownOptions) ([]byte, error) {
	opts = opts.withDefaults()
	if len(tracks) > models.MaxNarrationTracks {
		tracks = tracks[:models.MaxNarrationTracks]
	}
	if tl == nil || tl.Empty() {
		return nil, fmt.Errorf("%w: no clips", ErrExportFailed)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no narration tracks", ErrExportFailed)
	}

	buffers, err := decodeAll(ctx, dec, tracks, opts.SampleRate, opts.Channels)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	samples := Render(tl, buffers, opts.SampleRate, opts.Channels)
	return encode(samples, opts)
}

// Render schedules decoded narration buffers into an offline context and
// returns the interleaved mix. Tracks beyond the clip count are not placed.
func Render(tl *timeline.Timeline, buffers [][]float32, rate, channels int) []float32 {
	ctx := audio.NewOfflineContext(channels, FrameCount(tl.Total(), rate), rate)

	for i, buf := range buffers {
		if i >= tl.Len() || i >= models.MaxNarrationTracks {
			break
		}
		start, stop := tl.Start(i), tl.Stop(i)

		src := audio.NewBufferSource(buf, rate, channels)
		voice := ctx.Connect(src)
		voice.Gain.SetValue(0)
		Envelope(voice.Gain, i, start, stop)
		src.Start(start)
		src.Stop(stop)
	}

	return ctx.StartRendering()
}

// Concat decodes the narration tracks and lays them end to end into one WAV,
// ignoring the timeline.
func Concat(ctx context.Context, dec media.PCMDecoder, tracks []models.NarrationTrack, opts MixdownOptions) ([]byte, error) {
	opts = opts.withDefaults()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no narration tracks", ErrExportFailed)
	}

	buffers, err := decodeAll(ctx, dec, tracks, opts.SampleRate, opts.Channels)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, b := range buffers {
		total += len(b) - len(b)%opts.Channels
	}
	joined := make([]float32, 0, total)
	for _, b := range buffers {
		joined = append(joined, b[:len(b)-len(b)%opts.Channels]...)
	}

	return encode(joined, opts)
}

func encode(samples []float32, opts MixdownOptions) ([]byte, error) {
	wav, err := audio.WAV(samples, opts.SampleRate, opts.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return wav, nil
}

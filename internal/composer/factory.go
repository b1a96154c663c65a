package composer

import (
	"context"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// AudioElement is a media element the mixing graph can pull samples from
type AudioElement interface {
	media.Element
	audio.Source
}

// MediaFactory creates the media elements the loop controls
type MediaFactory interface {
	Video(clip models.Clip, clock media.Clock) media.VideoElement
	ClipAudio(clip models.Clip, rate, channels int) AudioElement
	Narration(track models.NarrationTrack, rate, channels int) AudioElement
}

// FFmpegFactory builds ffmpeg-backed elements
type FFmpegFactory struct {
	ctx    context.Context
	ff     *media.FFmpeg
	prober media.Prober
	fps    float64
}

// NewFFmpegFactory creates a factory. Decodes started by the factory are
// cancelled with ctx. prober may wrap ff with a cache.
func NewFFmpegFactory(ctx context.Context, ff *media.FFmpeg, prober media.Prober, fps float64) *FFmpegFactory {
	if prober == nil {
		prober = ff
	}
	return &FFmpegFactory{ctx: ctx, ff: ff, prober: prober, fps: fps}
}

// Video implements MediaFactory
func (f *FFmpegFactory) Video(clip models.Clip, clock media.Clock) media.VideoElement {
	v := media.NewVideo(f.ff, f.prober, clock, clip.URL, f.fps, clip.Duration)
	v.Load(f.ctx)
	return v
}

// ClipAudio implements MediaFactory
func (f *FFmpegFactory) ClipAudio(clip models.Clip, rate, channels int) AudioElement {
	t := media.NewTrack(clip.URL, rate, channels, clip.Duration)
	t.Load(f.ctx, f.ff)
	return t
}

// Narration implements MediaFactory
func (f *FFmpegFactory) Narration(track models.NarrationTrack, rate, channels int) AudioElement {
	t := media.NewTrack(track.URL, rate, channels, track.Duration)
	t.Load(f.ctx, f.ff)
	return t
}

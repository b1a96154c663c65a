package jobs

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/composer"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/config"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/export"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// ProgressFunc receives composer status snapshots while an export runs
type ProgressFunc func(composer.Status)

// Renderer produces export artifacts and preview frames from a spec
type Renderer interface {
	Render(ctx context.Context, kind models.ExportKind, spec models.ComposeSpec, outPath string, progress ProgressFunc) error
	Preview(ctx context.Context, spec models.ComposeSpec, at float64) (*image.RGBA, error)
}

// ArtifactName returns the file name an export of kind is written to
func ArtifactName(kind models.ExportKind, container string) string {
	switch kind {
	case models.ExportAudio:
		return "narration.wav"
	case models.ExportAudioConcat:
		return "narration_concat.wav"
	}
	if container == "" {
		container = export.ContainerWebM
	}
	return "export." + container
}

// FFmpegRenderer runs exports through a composer backed by ffmpeg elements
type FFmpegRenderer struct {
	cfg          config.ComposerConfig
	ff           *media.FFmpeg
	prober       media.Prober
	logger       zerolog.Logger
	pollInterval time.Duration
}

// NewFFmpegRenderer creates a renderer. prober may be nil, in which case
// clips are probed with ffprobe on every load.
func NewFFmpegRenderer(cfg config.ComposerConfig, prober media.Prober, logger zerolog.Logger) *FFmpegRenderer {
	ff := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if prober == nil {
		prober = ff
	}
	return &FFmpegRenderer{
		cfg:          cfg,
		ff:           ff,
		prober:       prober,
		logger:       logger.With().Str("component", "renderer").Logger(),
		pollInterval: 500 * time.Millisecond,
	}
}

// FFmpeg returns the ffmpeg wrapper the renderer decodes with
func (r *FFmpegRenderer) FFmpeg() *media.FFmpeg {
	return r.ff
}

// Options maps the composer config section onto composer options
func (r *FFmpegRenderer) Options() composer.Options {
	return OptionsFromConfig(r.cfg)
}

// OptionsFromConfig maps the composer config section onto composer options
func OptionsFromConfig(cfg config.ComposerConfig) composer.Options {
	return composer.Options{
		FPS:        cfg.FPS,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Warmup:     cfg.Warmup,
		RecordLead: cfg.RecordLead,
		Grace:      cfg.Grace,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	}
}

func (r *FFmpegRenderer) driver() composer.FrameDriver {
	if r.cfg.Realtime {
		return composer.RealtimeDriver{FPS: r.cfg.FPS}
	}
	return composer.SteppedDriver{FPS: r.cfg.FPS}
}

// Start runs a composer loaded with spec until the returned stop func is
// called or ctx is done
func (r *FFmpegRenderer) Start(ctx context.Context, spec models.ComposeSpec) (*composer.Composer, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	factory := composer.NewFFmpegFactory(ctx, r.ff, r.prober, r.cfg.FPS)
	c := composer.New(r.Options(), r.driver(), factory, r.logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("composer loop stopped")
		}
	}()
	stop := func() {
		cancel()
		<-done
	}

	if err := c.Load(ctx, spec); err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to load composition: %w", err)
	}
	return c, stop, nil
}

// Render writes the export of kind to outPath
func (r *FFmpegRenderer) Render(ctx context.Context, kind models.ExportKind, spec models.ComposeSpec, outPath string, progress ProgressFunc) error {
	if progress == nil {
		progress = func(composer.Status) {}
	}

	switch kind {
	case models.ExportVideo:
		return r.renderVideo(ctx, spec, outPath, progress)
	case models.ExportAudio:
		return r.renderAudio(ctx, spec, outPath, progress)
	case models.ExportAudioConcat:
		wav, err := export.Concat(ctx, r.ff, spec.Normalized().Narration, r.mixdownOptions())
		if err != nil {
			return err
		}
		return writeArtifact(outPath, wav)
	}
	return fmt.Errorf("unknown export kind %q", kind)
}

func (r *FFmpegRenderer) mixdownOptions() export.MixdownOptions {
	return export.MixdownOptions{SampleRate: r.cfg.SampleRate, Channels: r.cfg.Channels}
}

func (r *FFmpegRenderer) renderVideo(ctx context.Context, spec models.ComposeSpec, outPath string, progress ProgressFunc) error {
	c, stop, err := r.Start(ctx, spec)
	if err != nil {
		return err
	}
	defer stop()

	rec := export.NewFFmpegRecorder(r.ff, export.RecorderConfig{
		OutputPath:   outPath,
		TempDir:      filepath.Dir(outPath),
		Container:    r.cfg.Container,
		VideoBitrate: r.cfg.VideoBitrate,
		AudioBitrate: r.cfg.AudioBitrate,
	}, r.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Record(ctx, rec)
	}()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			progress(c.Status())
			if err != nil {
				return err
			}
			// A cancelled capture is finalized but is not a finished export.
			return ctx.Err()
		case <-ticker.C:
			progress(c.Status())
		}
	}
}

func (r *FFmpegRenderer) renderAudio(ctx context.Context, spec models.ComposeSpec, outPath string, progress ProgressFunc) error {
	c, stop, err := r.Start(ctx, spec)
	if err != nil {
		return err
	}
	defer stop()

	wav, err := c.ExportAudio(ctx, r.ff, r.mixdownOptions())
	if err != nil {
		return err
	}
	st := c.Status()
	st.Progress = 100
	progress(st)
	return writeArtifact(outPath, wav)
}

// Preview returns the composited frame at global time at
func (r *FFmpegRenderer) Preview(ctx context.Context, spec models.ComposeSpec, at float64) (*image.RGBA, error) {
	c, stop, err := r.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer stop()

	return c.Snapshot(ctx, at)
}

func writeArtifact(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

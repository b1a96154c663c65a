package export

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
)

// Container formats
const (
	ContainerWebM = "webm"
	ContainerMP4  = "mp4"
)

// RecorderConfig configures an FFmpegRecorder
type RecorderConfig struct {
	OutputPath   string
	TempDir      string
	Container    string
	VideoBitrate string
	AudioBitrate string
	Progress     media.ProgressCallback
}

// FFmpegRecorder encodes frames as they arrive, spools the audio tap to a
// temporary WAV file, and muxes both into the output container on Stop.
type FFmpegRecorder struct {
	ff     *media.FFmpeg
	cfg    RecorderConfig
	logger zerolog.Logger

	mu        sync.Mutex
	format    Capture
	enc       *media.Encoder
	wavFile   *os.File
	wav       *audio.WAVWriter
	videoPath string
	audioPath string
	frames    int
	rowBuf    []byte
	stopped   bool
}

// NewFFmpegRecorder creates a recorder writing cfg.OutputPath
func NewFFmpegRecorder(ff *media.FFmpeg, cfg RecorderConfig, logger zerolog.Logger) *FFmpegRecorder {
	if cfg.Container == "" {
		cfg.Container = ContainerWebM
	}
	if cfg.VideoBitrate == "" {
		cfg.VideoBitrate = "10M"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "128k"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &FFmpegRecorder{ff: ff, cfg: cfg, logger: logger.With().Str("component", "recorder").Logger()}
}

// Codecs returns the video and audio codecs for a container
func Codecs(container string) (video, audioCodec string, extra []string) {
	if container == ContainerMP4 {
		return "libx264", "aac", []string{"-movflags", "+faststart"}
	}
	return "libvpx-vp9", "libopus", []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"}
}

// Start launches the encoder and opens the audio spool. The encoder
// outlives cancellation of ctx so that a cancelled capture can still be
// finalized.
func (r *FFmpegRecorder) Start(ctx context.Context, format Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	id := uuid.New().String()
	r.format = format
	r.videoPath = filepath.Join(r.cfg.TempDir, id+"-video."+r.cfg.Container)
	r.audioPath = filepath.Join(r.cfg.TempDir, id+"-audio.wav")

	videoCodec, _, extra := Codecs(r.cfg.Container)
	opts := media.EncodeOptions{
		OutputPath:   r.videoPath,
		Width:        format.Width,
		Height:       format.Height,
		FPS:          format.FPS,
		VideoCodec:   videoCodec,
		VideoBitrate: r.cfg.VideoBitrate,
	}
	if r.cfg.Container == ContainerMP4 {
		opts.Preset = "veryfast"
	} else {
		opts.ExtraArgs = extra
	}

	enc, err := r.ff.StartEncoder(context.WithoutCancel(ctx), opts)
	if err != nil {
		return err
	}

	f, err := os.Create(r.audioPath)
	if err != nil {
		enc.Close()
		return fmt.Errorf("failed to create audio spool: %w", err)
	}
	wav, err := audio.NewWAVWriter(f, format.SampleRate, format.Channels)
	if err != nil {
		f.Close()
		enc.Close()
		return err
	}

	r.enc, r.wavFile, r.wav = enc, f, wav
	r.logger.Debug().Str("video", r.videoPath).Str("audio", r.audioPath).Msg("recorder started")
	return nil
}

// WriteFrame implements Recorder
func (r *FFmpegRecorder) WriteFrame(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil || r.stopped {
		return fmt.Errorf("recorder not running")
	}

	b := frame.Bounds()
	if b.Dx() != r.format.Width || b.Dy() != r.format.Height {
		return fmt.Errorf("frame size %dx%d, want %dx%d", b.Dx(), b.Dy(), r.format.Width, r.format.Height)
	}

	rowLen := b.Dx() * 4
	if frame.Stride == rowLen && len(frame.Pix) >= rowLen*b.Dy() {
		if _, err := r.enc.Write(frame.Pix[:rowLen*b.Dy()]); err != nil {
			return err
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			off := y * frame.Stride
			if _, err := r.enc.Write(frame.Pix[off : off+rowLen]); err != nil {
				return err
			}
		}
	}
	r.frames++
	return nil
}

// WriteAudio implements Recorder
func (r *FFmpegRecorder) WriteAudio(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wav == nil || r.stopped {
		return nil
	}
	return r.wav.WriteAudio(samples)
}

// Frames returns how many frames were captured
func (r *FFmpegRecorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stop finalizes the capture into the output container
func (r *FFmpegRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil || r.stopped {
		return nil
	}
	r.stopped = true
	defer r.cleanup()

	if err := r.enc.Close(); err != nil {
		return err
	}
	if err := r.wav.Close(); err != nil {
		return fmt.Errorf("failed to finalize audio spool: %w", err)
	}
	if err := r.wavFile.Close(); err != nil {
		return err
	}
	if r.frames == 0 {
		return fmt.Errorf("no frames captured")
	}

	_, audioCodec, _ := Codecs(r.cfg.Container)
	duration := float64(r.frames) / r.format.FPS
	err := r.ff.Mux(context.Background(), media.MuxOptions{
		VideoPath:    r.videoPath,
		AudioPath:    r.audioPath,
		OutputPath:   r.cfg.OutputPath,
		AudioCodec:   audioCodec,
		AudioBitrate: r.cfg.AudioBitrate,
		Duration:     duration,
	}, r.cfg.Progress)
	if err != nil {
		return err
	}

	r.logger.Info().
		Int("frames", r.frames).
		Float64("duration", duration).
		Str("output", r.cfg.OutputPath).
		Msg("recording finalized")
	return nil
}

func (r *FFmpegRecorder) cleanup() {
	r.wavFile.Close()
	os.Remove(r.videoPath)
	os.Remove(r.audioPath)
}

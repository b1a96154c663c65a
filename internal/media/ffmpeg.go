package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Metadata holds media metadata extracted from ffprobe
type Metadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// ClipInfo is the subset of probe output the composer needs
type ClipInfo struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

// Probe extracts metadata from a media file or URL
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*Metadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	return ParseMetadata(stdout.Bytes())
}

// ParseMetadata decodes ffprobe's JSON output
func ParseMetadata(data []byte) (*Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &metadata, nil
}

// ExtractClipInfo probes a clip and reduces the result to ClipInfo
func (f *FFmpeg) ExtractClipInfo(ctx context.Context, inputPath string) (*ClipInfo, error) {
	metadata, err := f.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return metadata.ClipInfo(), nil
}

// ClipInfo summarizes the first video and audio streams
func (m *Metadata) ClipInfo() *ClipInfo {
	info := &ClipInfo{}

	if duration, err := strconv.ParseFloat(m.Format.Duration, 64); err == nil {
		info.Duration = duration
	}

	for _, stream := range m.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.FrameRate = parseRate(stream.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseRate(stream.FrameRate)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.Channels = stream.Channels
			if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = rate
			}
		}
	}

	return info
}

func parseRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

// DecodePCM decodes the audio of inputPath to interleaved float32 samples
// resampled to rate and channels.
func (f *FFmpeg) DecodePCM(ctx context.Context, inputPath string, rate, channels int) ([]float32, error) {
	args := []string{
		"-v", "error",
		"-i", inputPath,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w, stderr: %s", err, stderr.String())
	}

	return BytesToFloat32(stdout.Bytes()), nil
}

// BytesToFloat32 converts little-endian f32 PCM to samples, dropping a
// trailing partial sample.
func BytesToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// FrameStream is a running ffmpeg process emitting raw RGBA frames
type FrameStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
	Width  int
	Height int
}

// OpenFrames starts decoding inputPath at start seconds, resampled to fps and
// scaled to width x height.
func (f *FFmpeg) OpenFrames(ctx context.Context, inputPath string, start, fps float64, width, height int) (*FrameStream, error) {
	args := []string{
		"-v", "error",
		"-noautorotate",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", inputPath,
		"-an",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d", strconv.FormatFloat(fps, 'f', -1, 64), width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	fs := &FrameStream{Width: width, Height: height}
	fs.cmd = exec.CommandContext(ctx, f.ffmpegPath, args...)
	fs.cmd.Stderr = &fs.stderr

	stdout, err := fs.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	fs.stdout = stdout
	fs.reader = bufio.NewReaderSize(stdout, width*height*4)

	if err := fs.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return fs, nil
}

// ReadFrame fills pix with the next frame. It returns io.EOF at end of stream.
func (fs *FrameStream) ReadFrame(pix []byte) error {
	_, err := io.ReadFull(fs.reader, pix)
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Close stops the decoder
func (fs *FrameStream) Close() error {
	fs.stdout.Close()
	if fs.cmd.Process != nil {
		fs.cmd.Process.Kill()
	}
	fs.cmd.Wait()
	return nil
}

// EncodeOptions describes a raw RGBA to video encode
type EncodeOptions struct {
	OutputPath   string
	Width        int
	Height       int
	FPS          float64
	VideoCodec   string
	VideoBitrate string
	Preset       string
	ExtraArgs    []string
}

// Encoder is a running ffmpeg process consuming raw RGBA frames on stdin
type Encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

// StartEncoder launches an encoder writing opts.OutputPath
func (f *FFmpeg) StartEncoder(ctx context.Context, opts EncodeOptions) (*Encoder, error) {
	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "pipe:0",
	}

	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	} else {
		args = append(args, "-c:v", "libx264")
	}

	if opts.VideoBitrate != "" {
		args = append(args, "-b:v", opts.VideoBitrate)
	}

	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}

	args = append(args, opts.ExtraArgs...)
	args = append(args, "-pix_fmt", "yuv420p", opts.OutputPath)

	enc := &Encoder{}
	enc.cmd = exec.CommandContext(ctx, f.ffmpegPath, args...)
	enc.cmd.Stderr = &enc.stderr

	stdin, err := enc.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	enc.stdin = stdin

	if err := enc.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return enc, nil
}

// Write feeds raw frame bytes to the encoder
func (e *Encoder) Write(p []byte) (int, error) {
	return e.stdin.Write(p)
}

// Close flushes the encoder and waits for it to exit
func (e *Encoder) Close() error {
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode failed: %w, stderr: %s", err, e.stderr.String())
	}
	return nil
}

// MuxOptions holds muxing options
type MuxOptions struct {
	VideoPath    string
	AudioPath    string
	OutputPath   string
	AudioCodec   string
	AudioBitrate string
	Duration     float64
	ExtraArgs    []string
}

// ProgressCallback is called with progress updates
type ProgressCallback func(progress float64)

var progressRegex = regexp.MustCompile(`out_time_ms=(\d+)`)

// Mux combines an encoded video stream with a WAV track, copying the video
// and encoding the audio, with progress tracking.
func (f *FFmpeg) Mux(ctx context.Context, opts MuxOptions, progressCB ProgressCallback) error {
	args := []string{
		"-i", opts.VideoPath,
		"-i", opts.AudioPath,
		"-y", // overwrite output
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
	}

	if opts.AudioCodec != "" {
		args = append(args, "-c:a", opts.AudioCodec)
	} else {
		args = append(args, "-c:a", "aac")
	}

	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}

	args = append(args, "-shortest")
	args = append(args, opts.ExtraArgs...)

	// Progress tracking
	args = append(args, "-progress", "pipe:1")

	args = append(args, opts.OutputPath)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if progress, ok := parseProgress(scanner.Text(), opts.Duration); ok && progressCB != nil {
			progressCB(progress)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderrBuf.String())
	}

	// Final progress update
	if progressCB != nil {
		progressCB(100)
	}

	return nil
}

// parseProgress converts an ffmpeg -progress line into a percentage of total
func parseProgress(line string, total float64) (float64, bool) {
	matches := progressRegex.FindStringSubmatch(line)
	if len(matches) < 2 || total <= 0 {
		return 0, false
	}
	timeUs, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	progress := (timeUs / 1000000.0 / total) * 100
	if progress > 100 {
		progress = 100
	}
	return progress, true
}

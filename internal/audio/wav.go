package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	pcmBitDepth = 16
	pcmFormat   = 1
)

// FloatToPCM16 converts a sample in [-1, 1] to a 16-bit value. Negative
// samples scale by 32768 and positive by 32767, truncating toward zero.
func FloatToPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// EncodeWAV writes interleaved samples as a 16-bit PCM RIFF/WAVE stream
func EncodeWAV(w io.WriteSeeker, samples []float32, rate, channels int) error {
	ww, err := NewWAVWriter(w, rate, channels)
	if err != nil {
		return err
	}
	if err := ww.WriteAudio(samples); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return ww.Close()
}

// WAV returns the encoded bytes of samples
func WAV(samples []float32, rate, channels int) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := EncodeWAV(ws, samples, rate, channels); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.Reader())
}

// WAVWriter streams 16-bit PCM to a seekable writer; the encoder patches the
// header sizes on Close.
type WAVWriter struct {
	enc    *wav.Encoder
	format *goaudio.Format
	frames int
}

// NewWAVWriter writes the header and opens the data chunk, so Close yields
// a valid file even when no audio arrives.
func NewWAVWriter(w io.WriteSeeker, rate, channels int) (*WAVWriter, error) {
	if channels < 1 || rate < 1 {
		return nil, fmt.Errorf("invalid wav format: %d Hz, %d channels", rate, channels)
	}
	ww := &WAVWriter{
		enc:    wav.NewEncoder(w, rate, pcmBitDepth, channels, pcmFormat),
		format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
	}
	if err := ww.enc.Write(&goaudio.IntBuffer{Format: ww.format, SourceBitDepth: pcmBitDepth}); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return ww, nil
}

// WriteAudio appends interleaved samples. A trailing partial frame is dropped.
func (ww *WAVWriter) WriteAudio(samples []float32) error {
	n := len(samples) - len(samples)%ww.format.NumChannels
	data := make([]int, n)
	for i, s := range samples[:n] {
		data[i] = int(FloatToPCM16(s))
	}
	if err := ww.enc.Write(&goaudio.IntBuffer{Format: ww.format, Data: data, SourceBitDepth: pcmBitDepth}); err != nil {
		return err
	}
	ww.frames += n / ww.format.NumChannels
	return nil
}

// Frames returns how many frames have been written
func (ww *WAVWriter) Frames() int {
	return ww.frames
}

// Close finalizes the header. The underlying writer stays open.
func (ww *WAVWriter) Close() error {
	return ww.enc.Close()
}

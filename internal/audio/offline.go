package audio

import "math"

// BufferSource plays decoded samples once, between a scheduled start and
// stop on the graph timeline.
type BufferSource struct {
	samples  []float32
	channels int
	rate     int
	start    int64
	stop     int64
}

// NewBufferSource wraps interleaved samples. It is silent until Start is called.
func NewBufferSource(samples []float32, rate, channels int) *BufferSource {
	return &BufferSource{samples: samples, rate: rate, channels: channels, start: -1, stop: math.MaxInt64}
}

// Start schedules playback from the beginning of the buffer at graph time when
func (b *BufferSource) Start(when float64) {
	b.start = int64(math.Round(when * float64(b.rate)))
}

// Stop schedules the end of playback at graph time when
func (b *BufferSource) Stop(when float64) {
	b.stop = int64(math.Round(when * float64(b.rate)))
}

// Duration returns the buffer length in seconds
func (b *BufferSource) Duration() float64 {
	return float64(len(b.samples)/b.channels) / float64(b.rate)
}

// Read implements Source for untimed use; it never produces audio
func (b *BufferSource) Read(dst []float32) int {
	return 0
}

// ReadAt fills dst with the buffer content for graph frames starting at frame
func (b *BufferSource) ReadAt(dst []float32, frame int64) {
	if b.start < 0 {
		return
	}
	frames := int64(len(dst) / b.channels)
	for f := int64(0); f < frames; f++ {
		at := frame + f
		if at < b.start || at >= b.stop {
			continue
		}
		src := (at - b.start) * int64(b.channels)
		if src+int64(b.channels) > int64(len(b.samples)) {
			return
		}
		copy(dst[f*int64(b.channels):(f+1)*int64(b.channels)], b.samples[src:src+int64(b.channels)])
	}
}

// OfflineContext renders a fixed-length graph as fast as possible
type OfflineContext struct {
	*Graph
	length int
}

// NewOfflineContext creates a context that renders length frames
func NewOfflineContext(channels, length, rate int) *OfflineContext {
	return &OfflineContext{
		Graph:  NewGraph(rate, channels, Discard),
		length: length,
	}
}

// Length returns the number of frames StartRendering produces
func (c *OfflineContext) Length() int {
	return c.length
}

// StartRendering mixes the whole graph and returns the interleaved result
func (c *OfflineContext) StartRendering() []float32 {
	return c.Render(c.length)
}

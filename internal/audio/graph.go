package audio

import (
	"fmt"
	"math"
	"sync"
)

const blockFrames = 1024

// Source produces interleaved samples at the graph's rate and channel count.
// Read returns how many samples were written; the rest of dst is silence.
type Source interface {
	Read(dst []float32) int
}

// TimedSource is a Source that knows where it sits on the graph timeline.
// ReadAt fills dst starting at graph frame.
type TimedSource interface {
	ReadAt(dst []float32, frame int64)
}

// Sink consumes mixed interleaved samples
type Sink interface {
	WriteAudio(samples []float32) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(samples []float32) error

// WriteAudio calls f
func (f SinkFunc) WriteAudio(samples []float32) error {
	return f(samples)
}

// Discard is a Sink that drops everything
var Discard Sink = SinkFunc(func([]float32) error { return nil })

// Voice is a source routed through a gain stage into the graph's master bus
type Voice struct {
	Gain  *Param
	src   Source
	graph *Graph
}

// Disconnect removes the voice from the graph
func (v *Voice) Disconnect() {
	v.graph.remove(v)
}

// Graph mixes voices into a master bus delivered to a destination and any
// number of capture taps. Time advances only through Advance or Render.
type Graph struct {
	rate     int
	channels int

	mu      sync.Mutex
	voices  []*Voice
	dest    Sink
	taps    map[int]Sink
	nextTap int
	frame   int64
	master  []float32
	scratch []float32
}

// NewGraph creates a graph delivering to dest
func NewGraph(rate, channels int, dest Sink) *Graph {
	if dest == nil {
		dest = Discard
	}
	return &Graph{
		rate:     rate,
		channels: channels,
		dest:     dest,
		taps:     make(map[int]Sink),
		master:   make([]float32, blockFrames*channels),
		scratch:  make([]float32, blockFrames*channels),
	}
}

// Rate returns the sample rate
func (g *Graph) Rate() int {
	return g.rate
}

// Channels returns the channel count
func (g *Graph) Channels() int {
	return g.channels
}

// Time returns the graph time in seconds
func (g *Graph) Time() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return float64(g.frame) / float64(g.rate)
}

// Connect routes src through a new unity-gain voice
func (g *Graph) Connect(src Source) *Voice {
	v := &Voice{Gain: NewParam(1), src: src, graph: g}
	g.mu.Lock()
	g.voices = append(g.voices, v)
	g.mu.Unlock()
	return v
}

// Voices returns the number of connected voices
func (g *Graph) Voices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// Tap adds a capture sink and returns a function removing it
func (g *Graph) Tap(s Sink) func() {
	g.mu.Lock()
	id := g.nextTap
	g.nextTap++
	g.taps[id] = s
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.taps, id)
		g.mu.Unlock()
	}
}

// Advance renders up to graph time t, delivering blocks to the destination
// and taps. Times at or before the current graph time are a no-op.
func (g *Graph) Advance(t float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	target := int64(math.Floor(t * float64(g.rate)))
	for g.frame < target {
		n := int(target - g.frame)
		if n > blockFrames {
			n = blockFrames
		}
		block := g.mix(n)
		if err := g.deliver(block); err != nil {
			return err
		}
	}
	return nil
}

// Render mixes exactly frames frames and returns them without delivering
// them to any sink.
func (g *Graph) Render(frames int) []float32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]float32, 0, frames*g.channels)
	for remaining := frames; remaining > 0; {
		n := remaining
		if n > blockFrames {
			n = blockFrames
		}
		out = append(out, g.mix(n)...)
		remaining -= n
	}
	return out
}

// mix renders n frames into the master buffer; mu must be held
func (g *Graph) mix(n int) []float32 {
	size := n * g.channels
	master := g.master[:size]
	for i := range master {
		master[i] = 0
	}

	start := g.frame
	for _, v := range g.voices {
		buf := g.scratch[:size]
		for i := range buf {
			buf[i] = 0
		}

		if ts, ok := v.src.(TimedSource); ok {
			ts.ReadAt(buf, start)
		} else {
			v.src.Read(buf)
		}

		for f := 0; f < n; f++ {
			gain := float32(v.Gain.ValueAt(float64(start+int64(f)) / float64(g.rate)))
			if gain == 0 {
				continue
			}
			for c := 0; c < g.channels; c++ {
				i := f*g.channels + c
				master[i] += buf[i] * gain
			}
		}
	}

	g.frame += int64(n)
	return master
}

// deliver must be called with mu held
func (g *Graph) deliver(block []float32) error {
	if err := g.dest.WriteAudio(block); err != nil {
		return fmt.Errorf("audio destination: %w", err)
	}
	for _, tap := range g.taps {
		if err := tap.WriteAudio(block); err != nil {
			return fmt.Errorf("audio tap: %w", err)
		}
	}
	return nil
}

func (g *Graph) remove(v *Voice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.voices {
		if cur == v {
			g.voices = append(g.voices[:i], g.voices[i+1:]...)
			return
		}
	}
}

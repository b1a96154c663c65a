// Package timeline converts between global playback time and clip-local time.
//
// Adjacent clips overlap by a single transition duration, so every clip but
// the last contributes (duration - overlap) seconds to the timeline. The live
// render loop, the seek handler and the offline mixdown all go through these
// functions; none of them re-derives the accumulation on its own.
package timeline

import (
	"math"

	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

const (
	// FallbackDuration is the total duration reported for an empty timeline
	FallbackDuration = 15.0
	// MinDuration floors the total duration of a multi-clip timeline
	MinDuration = 1.0
)

// Timeline is an ordered clip list plus the effective overlap between neighbours
type Timeline struct {
	Clips   []models.Clip
	Overlap float64
}

// New builds a timeline with the overlap clamped for the given clips
func New(clips []models.Clip, overlap float64) *Timeline {
	cp := make([]models.Clip, len(clips))
	copy(cp, clips)
	for i := range cp {
		if cp[i].Duration < 0 || math.IsNaN(cp[i].Duration) {
			cp[i].Duration = 0
		}
	}
	return &Timeline{Clips: cp, Overlap: ClampOverlap(cp, overlap)}
}

// ClampOverlap bounds the overlap to [0, shortest/2] so every clip keeps a
// non-negative solo window between its incoming and outgoing transitions.
func ClampOverlap(clips []models.Clip, overlap float64) float64 {
	if overlap < 0 || math.IsNaN(overlap) {
		return 0
	}
	if len(clips) < 2 {
		return overlap
	}
	shortest := math.Inf(1)
	for _, c := range clips {
		shortest = math.Min(shortest, c.Duration)
	}
	return math.Min(overlap, shortest/2)
}

// TotalDuration returns the length of the compressed timeline
func TotalDuration(clips []models.Clip, overlap float64) float64 {
	switch len(clips) {
	case 0:
		return FallbackDuration
	case 1:
		return clips[0].Duration
	}
	sum := 0.0
	for _, c := range clips {
		sum += c.Duration
	}
	return math.Max(sum-overlap*float64(len(clips)-1), MinDuration)
}

// Locate maps a global time to the clip that owns it and the time inside that clip.
// Clip i (not last) owns [start, start+duration-overlap); times past the end clamp
// to the last clip.
func Locate(clips []models.Clip, overlap, t float64) (int, float64) {
	if len(clips) == 0 || t <= 0 || math.IsNaN(t) {
		return 0, 0
	}
	acc := 0.0
	last := len(clips) - 1
	for i := 0; i < last; i++ {
		span := clips[i].Duration - overlap
		if t < acc+span {
			return i, t - acc
		}
		acc += span
	}
	local := math.Max(t-acc, 0)
	return last, math.Min(local, clips[last].Duration)
}

// TrackStart returns the global time at which clip i (and narration track i) begins
func TrackStart(clips []models.Clip, overlap float64, i int) float64 {
	start := 0.0
	for j := 0; j < i && j < len(clips); j++ {
		start += clips[j].Duration - overlap
	}
	return start
}

// TrackStop returns the natural stop time of narration track i: its start plus
// the full (uncompressed) duration of its clip.
func TrackStop(clips []models.Clip, overlap float64, i int) float64 {
	start := TrackStart(clips, overlap, i)
	if i < 0 || i >= len(clips) {
		return start
	}
	return start + clips[i].Duration
}

// Len returns the number of clips
func (t *Timeline) Len() int {
	return len(t.Clips)
}

// Empty reports whether the timeline has no clips
func (t *Timeline) Empty() bool {
	return len(t.Clips) == 0
}

// Clip returns clip i and whether it exists
func (t *Timeline) Clip(i int) (models.Clip, bool) {
	if i < 0 || i >= len(t.Clips) {
		return models.Clip{}, false
	}
	return t.Clips[i], true
}

// Total returns the total duration
func (t *Timeline) Total() float64 {
	return TotalDuration(t.Clips, t.Overlap)
}

// Locate maps a global time to (clip index, local time)
func (t *Timeline) Locate(global float64) (int, float64) {
	return Locate(t.Clips, t.Overlap, global)
}

// Start returns the global start of clip i
func (t *Timeline) Start(i int) float64 {
	return TrackStart(t.Clips, t.Overlap, i)
}

// Stop returns the natural stop of narration track i
func (t *Timeline) Stop(i int) float64 {
	return TrackStop(t.Clips, t.Overlap, i)
}

// Span describes where one clip sits on the compressed timeline
type Span struct {
	Index    int     `json:"index"`
	ClipID   string  `json:"clip_id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Virtual  bool    `json:"virtual"`
}

// Spans lists each clip's owned interval, matching Locate
func (t *Timeline) Spans() []Span {
	spans := make([]Span, len(t.Clips))
	for i, c := range t.Clips {
		start := t.Start(i)
		end := start + c.Duration - t.Overlap
		if i == len(t.Clips)-1 {
			end = start + c.Duration
		}
		spans[i] = Span{
			Index:    i,
			ClipID:   c.ID,
			Start:    start,
			End:      end,
			Duration: c.Duration,
			Virtual:  c.IsVirtual(),
		}
	}
	return spans
}

// Package audio implements a small pull-based mixing graph with automatable
// gain, an offline renderer, and WAV encoding.
package audio

import "sort"

type eventKind int

const (
	setValue eventKind = iota
	linearRamp
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
}

// Param is a value automated over graph time in seconds. Scheduled set and
// linear-ramp events follow the usual audio-param rules: a ramp interpolates
// from the previous event's time and value to its own.
type Param struct {
	initial float64
	events  []paramEvent
}

// NewParam creates a param with an initial value
func NewParam(initial float64) *Param {
	return &Param{initial: initial}
}

// SetValue cancels all automation and sets a constant value
func (p *Param) SetValue(v float64) {
	p.events = p.events[:0]
	p.initial = v
}

// SetValueAtTime jumps to v at time t
func (p *Param) SetValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: setValue, time: t, value: v})
}

// LinearRampToValueAtTime ramps linearly to v, arriving at time t
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: linearRamp, time: t, value: v})
}

// CancelScheduledValues removes every event at or after t
func (p *Param) CancelScheduledValues(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
}

// ValueAt evaluates the automation at time t
func (p *Param) ValueAt(t float64) float64 {
	prevT, prevV := 0.0, p.initial
	for _, e := range p.events {
		if e.time <= t {
			prevT, prevV = e.time, e.value
			continue
		}
		if e.kind == linearRamp {
			if e.time <= prevT {
				return e.value
			}
			return prevV + (e.value-prevV)*(t-prevT)/(e.time-prevT)
		}
		return prevV
	}
	return prevV
}

// Pending reports how many events are scheduled
func (p *Param) Pending() int {
	return len(p.events)
}

func (p *Param) insert(e paramEvent) {
	// Equal times keep insertion order.
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

package composer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoClips is returned by transport commands on an empty timeline
	ErrNoClips = errors.New("composer: no clips")
	// ErrBusy is returned when a command conflicts with a recording or export in progress
	ErrBusy = errors.New("composer: busy")
	// ErrStopped is returned once the loop has exited
	ErrStopped = errors.New("composer: stopped")
)

// State is the transport state
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateIdle, StatePlaying, StatePaused, StateEnded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("composer: unknown state %q", text)
}

// Slot names one of the two alternating media slots
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

// Other returns the opposite slot
func (s Slot) Other() Slot {
	return 1 - s
}

func (s Slot) String() string {
	if s == SlotB {
		return "B"
	}
	return "A"
}

// MarshalText implements encoding.TextMarshaler
func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Slot) UnmarshalText(text []byte) error {
	switch string(text) {
	case "A":
		*s = SlotA
	case "B":
		*s = SlotB
	default:
		return fmt.Errorf("composer: unknown slot %q", text)
	}
	return nil
}

// Position is the playback record for one tick. It is never mutated after
// being published; each tick builds a new one.
type Position struct {
	State         State   `json:"state"`
	Index         int     `json:"clip_index"`
	Local         float64 `json:"local"`
	Global        float64 `json:"global"`
	Progress      float64 `json:"progress"`
	Transitioning bool    `json:"transitioning"`
	Active        Slot    `json:"active_slot"`
}

// Status is the snapshot exposed to observers
type Status struct {
	Position
	Total          float64 `json:"total"`
	Clips          int     `json:"clips"`
	Generating     bool    `json:"generating"`
	Recording      bool    `json:"recording"`
	ExportingAudio bool    `json:"exporting_audio"`
}

// Busy reports whether any busy flag is set
func (s Status) Busy() bool {
	return s.Generating || s.Recording || s.ExportingAudio
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MaxNarrationTracks is the number of narration tracks a composition can carry.
// Track i narrates clip i.
const MaxNarrationTracks = 4

// TransitionMode selects how two overlapping clips are blended
type TransitionMode string

const (
	TransitionCrossFade   TransitionMode = "crossfade"
	TransitionFadeToBlack TransitionMode = "fade_to_black"
)

// SubtitleMode selects how a subtitle segment is drawn
type SubtitleMode string

const (
	SubtitleStatic  SubtitleMode = "static"
	SubtitleDynamic SubtitleMode = "dynamic"
)

// Clip is one element of the timeline. A clip without a URL is virtual and
// rendered as a generated placeholder carrying its label.
type Clip struct {
	ID       string  `json:"id" yaml:"id"`
	URL      string  `json:"url,omitempty" yaml:"url,omitempty"`
	Duration float64 `json:"duration" yaml:"duration"`
	Label    string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// IsVirtual reports whether the clip has no decodable media
func (c Clip) IsVirtual() bool {
	return c.URL == ""
}

// NarrationTrack is one narration audio segment bound to the clip with the same index
type NarrationTrack struct {
	Index    int     `json:"index" yaml:"index"`
	URL      string  `json:"url" yaml:"url"`
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// SubtitleOptions controls the subtitle overlay
type SubtitleOptions struct {
	Enabled bool         `json:"enabled" yaml:"enabled"`
	Mode    SubtitleMode `json:"mode" yaml:"mode"`
}

// ComposeSpec is everything a composer needs to render a short
type ComposeSpec struct {
	Clips         []Clip           `json:"clips" yaml:"clips"`
	Narration     []NarrationTrack `json:"narration,omitempty" yaml:"narration,omitempty"`
	Script        string           `json:"script,omitempty" yaml:"script,omitempty"`
	Overlap       float64          `json:"overlap" yaml:"overlap"`
	Transition    TransitionMode   `json:"transition" yaml:"transition"`
	Subtitles     SubtitleOptions  `json:"subtitles" yaml:"subtitles"`
	MuteClipAudio bool             `json:"mute_clip_audio" yaml:"mute_clip_audio"`
}

// Normalized returns a copy with defaults filled in and the narration list
// trimmed to the supported track count
func (s ComposeSpec) Normalized() ComposeSpec {
	if s.Transition == "" {
		s.Transition = TransitionCrossFade
	}
	if s.Subtitles.Mode == "" {
		s.Subtitles.Mode = SubtitleDynamic
	}
	if s.Overlap < 0 {
		s.Overlap = 0
	}
	narration := s.Narration
	if len(narration) > MaxNarrationTracks {
		narration = narration[:MaxNarrationTracks]
	}
	s.Narration = make([]NarrationTrack, len(narration))
	for i, n := range narration {
		n.Index = i
		s.Narration[i] = n
	}
	return s
}

// NarrationURLs returns the narration references in track order
func (s ComposeSpec) NarrationURLs() []string {
	urls := make([]string, len(s.Narration))
	for i, n := range s.Narration {
		urls[i] = n.URL
	}
	return urls
}

// Value implements driver.Valuer for database storage
func (s ComposeSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for database retrieval
func (s *ComposeSpec) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("compose spec: cannot scan %T", value)
	}
}

// Package subtitle splits narration scripts into per-clip segments and draws
// them over composited frames.
package subtitle

import (
	"image/color"
	"math"
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/render"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// WordsPerLine is how many words the dynamic mode shows at once
const WordsPerLine = 3

// Marks between segments; the legacy Indonesian "[Klip N]" marker is accepted too.
var segmentMarker = regexp.MustCompile(`(?i)\[(?:segment|klip)\s*\d+\]`)

var highlight = color.RGBA{0xfa, 0xcc, 0x15, 0xff}

// Split breaks script text into trimmed, non-empty segments, one per clip
func Split(script string) []string {
	if script == "" {
		return nil
	}
	parts := segmentMarker.Split(script, -1)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// WordTimer picks the word being spoken at local seconds into a clip
type WordTimer func(local, duration float64, words int) int

// LinearWordTimer spreads the words evenly over the first 80% of the clip so
// the last word lands before the transition starts.
func LinearWordTimer(local, duration float64, words int) int {
	if words <= 0 {
		return 0
	}
	span := math.Max(duration*0.8, 0.1)
	idx := int(math.Floor(local / span * float64(words)))
	if idx < 0 {
		return 0
	}
	if idx > words-1 {
		return words - 1
	}
	return idx
}

// Line returns the group of words containing wordIndex and the index of its
// first word.
func Line(words []string, wordIndex, perLine int) (int, []string) {
	if len(words) == 0 || perLine <= 0 {
		return 0, nil
	}
	start := (wordIndex / perLine) * perLine
	end := start + perLine
	if end > len(words) {
		end = len(words)
	}
	return start, words[start:end]
}

// Overlay draws one clip's subtitle segment
type Overlay struct {
	Mode  models.SubtitleMode
	Timer WordTimer
}

// NewOverlay creates an overlay using the linear word timer
func NewOverlay(mode models.SubtitleMode) *Overlay {
	return &Overlay{Mode: mode, Timer: LinearWordTimer}
}

// Draw renders segment for a clip of the given duration at local seconds
func (o *Overlay) Draw(s *render.Surface, segment string, local, duration float64) {
	if segment == "" {
		return
	}

	w := float64(s.Bounds().Dx())
	h := float64(s.Bounds().Dy())
	size := h / 25
	baseY := h - h/5

	face, err := render.ItalicFace(size)
	if err != nil {
		return
	}

	if o.Mode != models.SubtitleDynamic {
		x := w/2 - render.MeasureString(face, segment)/2
		s.DrawOutlined(face, segment, x, baseY, size/20, color.White, color.Black)
		return
	}

	timer := o.Timer
	if timer == nil {
		timer = LinearWordTimer
	}

	words := strings.Fields(segment)
	current := timer(local, duration, len(words))
	start, line := Line(words, current, WordsPerLine)

	big, err := render.ItalicFace(size * 1.2)
	if err != nil {
		big = face
	}

	gap := size * 0.3
	content := -gap
	widths := make([]float64, len(line))
	for i, word := range line {
		widths[i] = render.MeasureString(face, word)
		content += widths[i] + gap
	}

	dim := color.NRGBA{255, 255, 255, 153}
	dimOutline := color.NRGBA{0, 0, 0, 153}

	x := (w - content) / 2
	for i, word := range line {
		center := x + widths[i]/2
		if start+i == current {
			bw := render.MeasureString(big, word)
			s.DrawOutlined(big, word, center-bw/2, baseY, size*1.2/20, highlight, color.Black)
		} else {
			s.DrawOutlined(face, word, x, baseY, size/20, dim, dimOutline)
		}
		x += widths[i] + gap
	}
}

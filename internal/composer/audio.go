package composer

import (
	"github.com/rs/zerolog"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/timeline"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// Live fade-in windows. Track 0 opens the video so it gets no audible ramp;
// later tracks fade in across the visual transition.
const (
	firstTrackFadeIn = 0.1
	trackFadeIn      = 0.6
)

// LiveFadeIn returns the live fade-in window for track i
func LiveFadeIn(i int) float64 {
	if i == 0 {
		return firstTrackFadeIn
	}
	return trackFadeIn
}

type narration struct {
	track  models.NarrationTrack
	el     AudioElement
	handle *media.Handle
	voice  *audio.Voice

	// attempted marks a start already issued in this pass; resumable marks
	// a track paused by the transport rather than retired.
	attempted bool
	resumable bool
}

// narrationEngine maps timeline position to per-track start, stop and gain
type narrationEngine struct {
	graph  *audio.Graph
	post   media.Poster
	logger zerolog.Logger
	tracks []*narration
}

func newNarrationEngine(graph *audio.Graph, post media.Poster, logger zerolog.Logger) *narrationEngine {
	return &narrationEngine{graph: graph, post: post, logger: logger}
}

// load replaces every track
func (e *narrationEngine) load(factory MediaFactory, tracks []models.NarrationTrack) {
	e.close()
	for i, t := range tracks {
		if i >= models.MaxNarrationTracks {
			break
		}
		t.Index = i
		el := factory.Narration(t, e.graph.Rate(), e.graph.Channels())
		e.tracks = append(e.tracks, &narration{
			track:  t,
			el:     el,
			handle: media.NewHandle(el, e.post, e.logger.With().Int("track", i).Logger()),
		})
	}
}

func (e *narrationEngine) close() {
	for _, n := range e.tracks {
		n.handle.Stop()
		if n.voice != nil {
			n.voice.Disconnect()
		}
		n.handle.Close()
	}
	e.tracks = nil
}

// ensureNode wires a track into the graph on first use
func (e *narrationEngine) ensureNode(n *narration) {
	if n.voice != nil {
		return
	}
	n.voice = e.graph.Connect(n.el)
	n.voice.Gain.SetValue(0)
}

// sync starts every track whose window contains global and which is still
// stopped at its beginning. now is the graph time used for the fade.
func (e *narrationEngine) sync(tl *timeline.Timeline, global, now float64) {
	for i, n := range e.tracks {
		if i >= tl.Len() || n.attempted {
			continue
		}
		if global < tl.Start(i) || global >= tl.Stop(i) {
			continue
		}
		if n.handle.Playing() || n.handle.Position() != 0 {
			continue
		}

		e.ensureNode(n)
		gain := n.voice.Gain
		gain.CancelScheduledValues(0)
		gain.SetValueAtTime(0, now)
		gain.LinearRampToValueAtTime(1, now+LiveFadeIn(i))
		n.attempted = true
		n.handle.Start()
		e.logger.Debug().Int("track", i).Float64("global", global).Msg("narration started")
	}
}

// pause stops playing tracks so resume can pick them up again
func (e *narrationEngine) pause() {
	for _, n := range e.tracks {
		if n.handle.Playing() {
			n.handle.Stop()
			n.resumable = true
		}
	}
}

func (e *narrationEngine) resume() {
	for _, n := range e.tracks {
		if n.resumable {
			n.resumable = false
			n.handle.Start()
		}
	}
}

// retire stops track i, rewinds it and silences its gain
func (e *narrationEngine) retire(i int) {
	if i < 0 || i >= len(e.tracks) {
		return
	}
	n := e.tracks[i]
	n.handle.Rewind()
	if n.voice != nil {
		n.voice.Gain.SetValue(0)
	}
	n.attempted = false
	n.resumable = false
}

func (e *narrationEngine) reset() {
	for i := range e.tracks {
		e.retire(i)
	}
}

// seek places every track relative to global time t. Tracks whose window
// contains t jump to t-start at full gain; the rest are retired.
func (e *narrationEngine) seek(tl *timeline.Timeline, t float64, playing bool) {
	for i, n := range e.tracks {
		if i >= tl.Len() {
			e.retire(i)
			continue
		}
		start, stop := tl.Start(i), tl.Stop(i)
		if t < start || t >= stop {
			e.retire(i)
			continue
		}

		e.ensureNode(n)
		n.voice.Gain.SetValue(1)
		n.handle.Seek(t - start)
		n.attempted = true
		if playing {
			n.resumable = false
			n.handle.Start()
		} else {
			n.handle.Stop()
			n.resumable = true
		}
	}
}

func (e *narrationEngine) pending() bool {
	for _, n := range e.tracks {
		if n.handle.Pending() {
			return true
		}
	}
	return false
}

func (e *narrationEngine) playing() int {
	count := 0
	for _, n := range e.tracks {
		if n.handle.Playing() {
			count++
		}
	}
	return count
}

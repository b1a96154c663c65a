// Package media wraps ffmpeg-backed decoders behind asynchronous media
// elements and the Handle adapter that serializes their start/stop requests.
package media

import (
	"image"
	"time"

	"github.com/rs/zerolog"
)

// Clock reports the owning loop's current time
type Clock interface {
	Now() time.Duration
}

// Poster delivers a closure onto the goroutine that owns the media state
type Poster interface {
	Post(fn func())
}

// Element is a media player whose start request completes asynchronously.
type Element interface {
	// Play requests playback. done is called exactly once, from any goroutine,
	// when playback has started or the request was rejected.
	Play(done func(error))
	Pause()
	Paused() bool
	Position() float64
	SetPosition(seconds float64)
	Duration() float64
	Close() error
}

// VideoElement is an Element that can present the frame at its position
type VideoElement interface {
	Element
	// Frame returns the decoded frame for the current position, or nil if
	// nothing has been decoded yet.
	Frame() image.Image
}

// Handle owns one Element and serializes requests against it. A stop that
// arrives while a start is still in flight is applied only after that start
// completes, so a late-resolving start can never leave the element playing.
// Handle methods must be called from the goroutine behind its Poster.
type Handle struct {
	el        Element
	post      Poster
	logger    zerolog.Logger
	inflight  bool
	stopAfter bool
	failures  int
}

// NewHandle wraps an element
func NewHandle(el Element, post Poster, logger zerolog.Logger) *Handle {
	return &Handle{el: el, post: post, logger: logger}
}

// Element returns the wrapped element
func (h *Handle) Element() Element {
	return h.el
}

// Start begins playback unless the element is already playing or starting
func (h *Handle) Start() {
	if h.inflight {
		h.stopAfter = false
		return
	}
	if !h.el.Paused() {
		return
	}

	h.inflight = true
	h.el.Play(func(err error) {
		h.post.Post(func() { h.settle(err) })
	})
}

// Stop pauses playback, deferring the pause until an in-flight start settles
func (h *Handle) Stop() {
	if h.inflight {
		h.stopAfter = true
		return
	}
	if !h.el.Paused() {
		h.el.Pause()
	}
}

// Seek moves the element's position
func (h *Handle) Seek(seconds float64) {
	h.el.SetPosition(seconds)
}

// Rewind stops the element and moves it back to the beginning
func (h *Handle) Rewind() {
	h.Stop()
	h.el.SetPosition(0)
}

// Playing reports whether the element is playing or will be once its start settles
func (h *Handle) Playing() bool {
	if h.inflight {
		return !h.stopAfter
	}
	return !h.el.Paused()
}

// Pending reports whether a start request is in flight
func (h *Handle) Pending() bool {
	return h.inflight
}

// Failures returns how many start requests were rejected
func (h *Handle) Failures() int {
	return h.failures
}

// Position returns the element's position in seconds
func (h *Handle) Position() float64 {
	return h.el.Position()
}

// Close releases the element
func (h *Handle) Close() error {
	h.stopAfter = true
	return h.el.Close()
}

func (h *Handle) settle(err error) {
	h.inflight = false
	if err != nil {
		// Rejected starts leave the element paused; nothing else depends on them.
		h.failures++
		h.logger.Debug().Err(err).Msg("media start rejected")
	}
	if h.stopAfter {
		h.stopAfter = false
		if !h.el.Paused() {
			h.el.Pause()
		}
	}
}

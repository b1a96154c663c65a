package composer

import (
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/media"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

// slot holds the media for one clip. Virtual clips have no handles and are
// timed by the software timer alone.
type slot struct {
	clip    int
	def     models.Clip
	video   *media.Handle
	frames  media.VideoElement
	sound   *media.Handle
	voice   *audio.Voice
	timer   float64
	running bool
}

func (s *slot) empty() bool {
	return s.clip < 0
}

// advance moves the slot's local time by dt seconds of loop time. A playing
// element is authoritative; a stalled, ended or rejected one falls back to
// the software timer so the timeline keeps moving.
func (s *slot) advance(dt float64) {
	if !s.running || s.empty() {
		return
	}
	if s.video != nil {
		if s.video.Pending() {
			return
		}
		if s.video.Playing() {
			s.timer = s.video.Position()
			return
		}
		// An element that just ended still reports its final position.
		if pos := s.video.Position(); pos > s.timer {
			s.timer = pos
			return
		}
	}
	s.timer += dt
}

func (s *slot) seek(local float64) {
	s.timer = local
	if s.video != nil {
		s.video.Seek(local)
	}
	if s.sound != nil {
		s.sound.Seek(local)
	}
}

func (s *slot) start() {
	if s.empty() {
		return
	}
	s.running = true
	if s.video != nil {
		s.video.Start()
	}
	if s.sound != nil {
		s.sound.Start()
	}
}

func (s *slot) stop() {
	s.running = false
	if s.video != nil {
		s.video.Stop()
	}
	if s.sound != nil {
		s.sound.Stop()
	}
}

func (s *slot) pending() bool {
	return (s.video != nil && s.video.Pending()) || (s.sound != nil && s.sound.Pending())
}

// release stops and closes the slot's media and empties it
func (s *slot) release() {
	s.stop()
	if s.voice != nil {
		s.voice.Disconnect()
	}
	if s.video != nil {
		s.video.Close()
	}
	if s.sound != nil {
		s.sound.Close()
	}
	*s = slot{clip: -1}
}

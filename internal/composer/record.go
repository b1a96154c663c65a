package composer

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/reelfuse/internal/audio"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/export"
	"github.com/therealutkarshpriyadarshi/reelfuse/internal/metrics"
	"github.com/therealutkarshpriyadarshi/reelfuse/pkg/models"
)

type recording struct {
	ctx      context.Context
	rec      export.Recorder
	done     chan error
	began    time.Time
	started  bool
	ending   bool
	stopping bool
	untap    func()
}

// Record captures one full pass of the timeline into rec. It resets the
// transport, waits the warm-up, starts the recorder, starts playback, and
// returns once the recorder has been finalized after the grace period.
// Cancelling ctx or calling Cancel finalizes what was captured so far.
func (c *Composer) Record(ctx context.Context, rec export.Recorder) error {
	var done chan error
	err := c.do(ctx, func() error {
		d, err := c.startRecording(ctx, rec)
		done = d
		return err
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.do(context.Background(), func() error {
			c.cancelRecording()
			return nil
		})
		return <-done
	}
}

func (c *Composer) startRecording(ctx context.Context, rec export.Recorder) (chan error, error) {
	if c.rec != nil || c.exportingAudio {
		return nil, ErrBusy
	}
	if c.tl.Empty() {
		return nil, ErrNoClips
	}

	c.reset()
	r := &recording{ctx: ctx, rec: rec, done: make(chan error, 1), began: time.Now()}
	c.rec = r
	c.publish()

	c.after(c.opts.Warmup, func() {
		if c.rec != r || r.stopping {
			return
		}
		format := export.Capture{
			Width:      c.opts.Width,
			Height:     c.opts.Height,
			FPS:        c.opts.FPS,
			SampleRate: c.graph.Rate(),
			Channels:   c.graph.Channels(),
		}
		if err := rec.Start(ctx, format); err != nil {
			c.finishRecording(fmt.Errorf("%w: start recorder: %v", export.ErrExportFailed, err))
			return
		}
		r.started = true
		r.untap = c.graph.Tap(audio.SinkFunc(rec.WriteAudio))
		c.logger.Info().Float64("total", c.tl.Total()).Msg("recording started")

		c.after(c.opts.RecordLead, func() {
			if c.rec == r && !r.stopping {
				c.play()
			}
		})
	})

	return r.done, nil
}

// capture hands the freshly drawn frame to the recorder
func (c *Composer) capture() {
	r := c.rec
	if r == nil || !r.started || r.stopping {
		return
	}
	if err := r.rec.WriteFrame(c.surface.RGBA); err != nil {
		c.finishRecording(fmt.Errorf("%w: write frame: %v", export.ErrExportFailed, err))
	}
}

func (c *Composer) recordingEnded() {
	r := c.rec
	if r.ending {
		return
	}
	r.ending = true
	c.after(c.opts.Grace, func() {
		if c.rec == r {
			c.finishRecording(nil)
		}
	})
}

func (c *Composer) cancelRecording() {
	r := c.rec
	if r == nil || r.stopping {
		return
	}
	if !r.started {
		c.finishRecording(context.Canceled)
		return
	}
	c.logger.Info().Float64("global", c.pos.Global).Msg("recording cancelled, finalizing capture")
	c.finishRecording(nil)
}

// finishRecording detaches the recorder and finalizes it off the loop. The
// recording flag stays set until the recorder has been stopped.
func (c *Composer) finishRecording(cause error) {
	r := c.rec
	if r == nil || r.stopping {
		return
	}
	r.stopping = true
	if r.untap != nil {
		r.untap()
	}

	c.slots[SlotA].stop()
	c.slots[SlotB].stop()
	c.narr.pause()
	if c.pos.State == StatePlaying || c.pos.State == StatePaused {
		p := c.pos
		p.State = StateEnded
		c.pos = p
	}
	c.publish()

	go func() {
		err := cause
		if r.started {
			if stopErr := r.rec.Stop(); stopErr != nil && err == nil {
				err = fmt.Errorf("%w: finalize: %v", export.ErrExportFailed, stopErr)
			}
		}

		status := "completed"
		if err != nil {
			status = "failed"
		}
		metrics.RecordExport(string(models.ExportVideo), status, time.Since(r.began).Seconds())

		cleared := make(chan struct{})
		c.Post(func() {
			if c.rec == r {
				c.rec = nil
				c.publish()
			}
			close(cleared)
		})
		select {
		case <-cleared:
		case <-c.done:
		}
		r.done <- err
	}()
}

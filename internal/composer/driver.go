package composer

import (
	"context"
	"time"
)

// FrameDriver produces frame timestamps on the loop's clock
type FrameDriver interface {
	// Frames delivers timestamps until ctx is done, then closes the channel.
	Frames(ctx context.Context) <-chan time.Duration
	// Synchronous drivers let the loop hold frames back while media starts
	// are in flight, so output does not depend on decode latency.
	Synchronous() bool
}

// RealtimeDriver paces frames from the wall clock
type RealtimeDriver struct {
	FPS float64
}

// Frames implements FrameDriver
func (d RealtimeDriver) Frames(ctx context.Context) <-chan time.Duration {
	out := make(chan time.Duration)
	interval := time.Duration(float64(time.Second) / d.FPS)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case out <- now.Sub(start):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Synchronous implements FrameDriver
func (d RealtimeDriver) Synchronous() bool {
	return false
}

// SteppedDriver advances a virtual clock by exactly 1/FPS per frame as fast
// as the loop consumes frames.
type SteppedDriver struct {
	FPS float64
}

// Frames implements FrameDriver
func (d SteppedDriver) Frames(ctx context.Context) <-chan time.Duration {
	out := make(chan time.Duration)

	go func() {
		defer close(out)
		for n := int64(1); ; n++ {
			select {
			case out <- FrameTime(n, d.FPS):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Synchronous implements FrameDriver
func (d SteppedDriver) Synchronous() bool {
	return true
}

// FrameTime returns the timestamp of frame n at fps without accumulating
// rounding error.
func FrameTime(n int64, fps float64) time.Duration {
	return time.Duration(float64(n) * float64(time.Second) / fps)
}

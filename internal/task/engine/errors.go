package engine

import "errors"

var (
	// ErrInterrupted is returned by Frame.Next when a more urgent animation
	// was queued. The animation should return it (possibly after
	// re-enqueueing itself).
	ErrInterrupted = errors.New("animation interrupted")

	// ErrClear asks the scheduler to discard every pending animation.
	ErrClear = errors.New("animation queue cleared")

	ErrStopped   = errors.New("animation scheduler stopped")
	ErrQueueFull = errors.New("animation queue full")
	ErrNilTask   = errors.New("animation task is nil")
)

// IsPreemption reports whether err is one of the scheduler's control signals
// rather than a fault.
func IsPreemption(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, ErrClear)
}

// Package clock is the host-clock interface the core reads "now" from on
// every operation.
package clock

import "time"

// Clock reports the current time in seconds since epoch, monotonic
// non-decreasing across calls.
type Clock interface {
	NowSeconds() uint64
}

// System is the real wall-clock implementation.
type System struct{}

// NowSeconds implements Clock.
func (System) NowSeconds() uint64 {
	return uint64(time.Now().Unix())
}

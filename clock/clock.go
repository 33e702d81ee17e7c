package clock

import (
	"errors"
	"math"
	"sync"
	"time"
)

// MaxOffset is the largest offset, in either direction, that still fits a time.Duration.
const MaxOffset = math.MaxInt64 / int64(time.Second)

var ErrOffsetOutOfRange = errors.New("clock offset out of range")

// VirtualClock is wall time shifted by a signed offset in seconds. The dev
// chain stamps blocks with it so tests can move time without sleeping.
type VirtualClock struct {
	mu     sync.RWMutex
	base   func() time.Time
	offset int64
}

// New returns a clock over base. A nil base uses time.Now.
func New(base func() time.Time) *VirtualClock {
	if base == nil {
		base = time.Now
	}
	return &VirtualClock{base: base}
}

// NewFixed returns a clock frozen at start, for tests.
func NewFixed(start time.Time) *VirtualClock {
	return New(func() time.Time { return start })
}

func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.base().Add(time.Duration(c.offset) * time.Second)
}

func (c *VirtualClock) Offset() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.offset
}

// SetOffset replaces the offset, clamped to ±MaxOffset.
func (c *VirtualClock) SetOffset(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case seconds > MaxOffset:
		seconds = MaxOffset
	case seconds < -MaxOffset:
		seconds = -MaxOffset
	}
	c.offset = seconds
}

// Advance adds seconds (which may be negative) to the offset and returns the
// new offset. A result beyond ±MaxOffset leaves the clock unchanged.
func (c *VirtualClock) Advance(seconds int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds > MaxOffset || seconds < -MaxOffset {
		return c.offset, ErrOffsetOutOfRange
	}
	// both operands are within ±MaxOffset, so the sum cannot wrap
	next := c.offset + seconds
	if next > MaxOffset || next < -MaxOffset {
		return c.offset, ErrOffsetOutOfRange
	}
	c.offset = next
	return c.offset, nil
}

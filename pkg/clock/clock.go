package clock

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects how Clock.Now advances.
type Mode string

const (
	// Real returns wall-clock seconds.
	Real Mode = "real"
	// Accelerated returns wall-clock seconds scaled by Multiplier, plus Offset.
	Accelerated Mode = "accelerated"
	// Manual freezes time; it only advances via Advance.
	Manual Mode = "manual"
)

// Clock is the single process-wide virtual time source. The zero value is
// not usable; construct one with New.
type Clock struct {
	mu sync.Mutex

	mode       Mode
	multiplier int64
	start      int64 // wall-clock seconds at the last SetMode/Reset
	offset     int64 // seconds added on top of the derived value
}

// New creates a Clock in real mode.
func New() *Clock {
	return &Clock{
		mode:       Real,
		multiplier: 1,
		start:      time.Now().Unix(),
	}
}

// Now returns the current virtual time in seconds since the Unix epoch.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() int64 {
	switch c.mode {
	case Manual:
		return c.start + c.offset
	case Accelerated:
		wallElapsed := time.Now().Unix() - c.start
		return c.start + wallElapsed*c.multiplier + c.offset
	default: // Real
		return time.Now().Unix() + c.offset
	}
}

// Advance adds delta seconds to the clock's offset. Permitted in manual and
// accelerated modes; in real mode it still applies (tests may want to skew
// wall time forward without leaving real mode), matching the "advance"
// operation being permitted in manual/accelerated in spec and harmless in
// real mode since offset composes additively.
func (c *Clock) Advance(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += delta
	return c.nowLocked()
}

// SetMode switches the clock to mode, resetting start to wall-clock now and
// zeroing the offset. multiplier is only meaningful for Accelerated mode and
// must be a positive integer; it is ignored (stored as 1) for other modes.
func (c *Clock) SetMode(mode Mode, multiplier int64) error {
	if mode == Accelerated && multiplier <= 0 {
		return fmt.Errorf("clock: accelerated multiplier must be positive, got %d", multiplier)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	if mode == Accelerated {
		c.multiplier = multiplier
	} else {
		c.multiplier = 1
	}
	c.start = time.Now().Unix()
	c.offset = 0
	return nil
}

// Reset zeroes the offset and restarts the start reference at wall-clock
// now, keeping the current mode and multiplier.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now().Unix()
	c.offset = 0
}

// GetMode returns the current mode and, if accelerated, its multiplier.
func (c *Clock) GetMode() (Mode, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.multiplier
}

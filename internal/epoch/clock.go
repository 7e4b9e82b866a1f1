package epoch

import "math"

// DefaultBootstrappingPeriod is the number of epochs during which newly
// minted supply does not accrue debt.
const DefaultBootstrappingPeriod uint64 = 90

// Clock is a monotonically increasing epoch counter
type Clock struct {
	current             uint64
	bootstrappingPeriod uint64
}

// NewClock creates a clock at epoch 0
func NewClock(bootstrappingPeriod uint64) Clock {
	return Clock{bootstrappingPeriod: bootstrappingPeriod}
}

// Restore creates a clock resumed at the given epoch
func Restore(bootstrappingPeriod, current uint64) Clock {
	return Clock{current: current, bootstrappingPeriod: bootstrappingPeriod}
}

// Advance moves the clock forward by exactly one epoch and returns the new epoch
func (c *Clock) Advance() uint64 {
	if c.current == math.MaxUint64 {
		panic("epoch: counter overflow")
	}
	c.current++
	return c.current
}

// Current returns the current epoch
func (c Clock) Current() uint64 {
	return c.current
}

// BootstrappingPeriod returns the configured bootstrapping length
func (c Clock) BootstrappingPeriod() uint64 {
	return c.bootstrappingPeriod
}

// IsBootstrapping reports whether the clock is still inside the
// bootstrapping period. The last bootstrapping epoch is the period itself.
func (c Clock) IsBootstrapping() bool {
	return c.current <= c.bootstrappingPeriod
}

package epoch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	t.Run("should start at genesis while bootstrapping", func(t *testing.T) {
		c := NewClock(DefaultBootstrappingPeriod)
		assert.Equal(t, uint64(0), c.Current())
		assert.True(t, c.IsBootstrapping())
	})

	t.Run("should advance by one", func(t *testing.T) {
		c := NewClock(DefaultBootstrappingPeriod)
		assert.Equal(t, uint64(1), c.Advance())
		assert.Equal(t, uint64(2), c.Advance())
		assert.Equal(t, uint64(2), c.Current())
	})

	t.Run("should still bootstrap at the period boundary", func(t *testing.T) {
		c := NewClock(DefaultBootstrappingPeriod)
		for i := uint64(0); i < DefaultBootstrappingPeriod; i++ {
			c.Advance()
		}
		assert.Equal(t, DefaultBootstrappingPeriod, c.Current())
		assert.True(t, c.IsBootstrapping())

		c.Advance()
		assert.False(t, c.IsBootstrapping())
	})

	t.Run("should never bootstrap past a zero period", func(t *testing.T) {
		c := NewClock(0)
		assert.True(t, c.IsBootstrapping())
		c.Advance()
		assert.False(t, c.IsBootstrapping())
	})

	t.Run("should resume a restored clock", func(t *testing.T) {
		c := Restore(90, 120)
		assert.Equal(t, uint64(120), c.Current())
		assert.Equal(t, uint64(90), c.BootstrappingPeriod())
		assert.False(t, c.IsBootstrapping())
	})

	t.Run("should panic on overflow", func(t *testing.T) {
		c := Restore(90, math.MaxUint64)
		assert.Panics(t, func() { c.Advance() })
	})
}

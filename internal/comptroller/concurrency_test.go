package comptroller

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with -race.
func TestConcurrentOperations(t *testing.T) {
	t.Run("should keep totals consistent under concurrent callers", func(t *testing.T) {
		f := newFixture(t)
		f.bootstrap(t)

		const workers = 16
		const rounds = 25

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < rounds; j++ {
					assert.NoError(t, f.c.MintToAccount(f.ctx, user, amt(10)))
					assert.NoError(t, f.c.DecreaseDebt(f.ctx, amt(3)))
					_ = f.c.Snapshot()
				}
			}()
		}
		wg.Wait()

		snap := f.c.Snapshot()
		assert.Equal(t, amt(workers*rounds*10).String(), snap.TotalSupply.String())
		assert.Equal(t, amt(workers*rounds*7).String(), snap.TotalDebt.String())
		require.NoError(t, snap.State.Check(snap.TotalSupply))
	})

	t.Run("should advance the epoch exactly once per call", func(t *testing.T) {
		f := newFixture(t)

		const callers = 50
		seen := make(chan uint64, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, err := f.c.AdvanceEpoch(f.ctx)
				assert.NoError(t, err)
				seen <- next
			}()
		}
		wg.Wait()
		close(seen)

		unique := make(map[uint64]bool)
		for e := range seen {
			unique[e] = true
		}
		assert.Len(t, unique, callers)
		assert.Equal(t, uint64(callers), f.c.CurrentEpoch())
	})
}

package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_StartsAfterStart(t *testing.T) {
	for _, start := range []int64{0, 41, 1_000_000} {
		s := NewSequence(start)
		assert.Equal(t, start, s.Last())
		assert.Equal(t, start+1, s.Next())
		assert.Equal(t, start+2, s.Next())
		assert.Equal(t, start+2, s.Last())
	}
}

func TestSequence_ConcurrentNextIsGapless(t *testing.T) {
	s := NewSequence(0)
	const writers, perWriter = 16, 250

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool, writers*perWriter)
		wg   sync.WaitGroup
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				n := s.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, writers*perWriter)
	for n := int64(1); n <= writers*perWriter; n++ {
		assert.True(t, seen[n], "missing %d", n)
	}
}

package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rbruinekool/singularity/internal/engine"
)

var _ engine.IDGenerator = (*SequentialIDs)(nil)

func TestSequentialIDs_Counts(t *testing.T) {
	gen := NewSequentialIDs("dispatch")

	assert.Equal(t, "dispatch-1", gen.Generate())
	assert.Equal(t, "dispatch-2", gen.Generate())
	assert.Equal(t, "dispatch-3", gen.Generate())
}

func TestSequentialIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialIDs("")

	assert.Equal(t, "test-1", gen.Generate())
}

func TestSequentialIDs_ConcurrentUnique(t *testing.T) {
	gen := NewSequentialIDs("c")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

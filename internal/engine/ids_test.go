package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	parsed, err := uuid.Parse(UUIDv7Generator{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_NoDuplicatesAcrossGoroutines(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]struct{}{}
		wg   sync.WaitGroup
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := UUIDv7Generator{}.Generate()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 64)
}

func TestFixedGenerator(t *testing.T) {
	ids := []string{"d-1", "d-2"}
	gen := NewFixedGenerator(ids...)
	ids[0] = "mutated"

	assert.Equal(t, 2, gen.Remaining())
	assert.Equal(t, "d-1", gen.Generate())
	assert.Equal(t, "d-2", gen.Generate())
	assert.Zero(t, gen.Remaining())
	assert.PanicsWithValue(t, "engine: FixedGenerator exhausted", func() { gen.Generate() })
}

package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsFrozen(t *testing.T) {
	clock := NewFakeClock(1_000_000)

	assert.Equal(t, int64(1_000_000), clock.Now().UnixMilli())
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(1_000)

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(1_250), clock.Now().UnixMilli())

	clock.Advance(-time.Second)
	assert.Equal(t, int64(1_250), clock.Now().UnixMilli(), "negative advance ignored")
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(5_000)

	clock.Set(10)
	assert.Equal(t, int64(10), clock.Now().UnixMilli())
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFakeClock(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), clock.Now().UnixMilli())
}

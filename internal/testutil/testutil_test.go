package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_FrozenUntilAdvanced(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), clock.Now())

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestFixedClock_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	clock := NewFixedClock(time.Date(2025, 3, 1, 7, 0, 0, 0, loc))

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 12, clock.Now().Hour())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("evt")

	assert.Equal(t, "evt-0001", ids.Generate())
	assert.Equal(t, "evt-0002", ids.Generate())

	ids.Reset()
	assert.Equal(t, "evt-0001", ids.Generate())

	assert.Equal(t, "id-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_Concurrent(t *testing.T) {
	ids := NewSequentialIDs("x")
	const goroutines = 50

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines)
}

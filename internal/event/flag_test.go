package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlag_SetClear(t *testing.T) {
	f := New()
	assert.False(t, f.IsSet())

	f.Set()
	assert.True(t, f.IsSet())
	f.Set() // idempotent
	assert.True(t, f.IsSet())

	f.Clear()
	assert.False(t, f.IsSet())
	f.Clear()
	assert.False(t, f.IsSet())
}

func TestFlag_WaitAlreadySet(t *testing.T) {
	f := New()
	f.Set()
	assert.True(t, f.Wait(time.Millisecond))
}

func TestFlag_WaitTimeout(t *testing.T) {
	f := New()
	start := time.Now()
	assert.False(t, f.Wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFlag_WaitWokenBySet(t *testing.T) {
	f := New()

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.Wait(time.Second)
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	f.Set()
	wg.Wait()

	for _, got := range results {
		assert.True(t, got, "every waiter must observe the set")
	}
}

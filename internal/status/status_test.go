package status

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLazilyStoresDefault(t *testing.T) {
	c := NewCache[int]()
	assert.Equal(t, 7, c.Get("a", 7))
	// default must now be pinned, not re-evaluated
	assert.Equal(t, 7, c.Get("a", 99))
	// lazy default is not a write
	assert.Equal(t, uint64(0), c.Version("a"))
}

func TestSetBumpsVersion(t *testing.T) {
	c := NewCache[string]()
	c.Set("k", "one")
	c.Set("k", "two")
	assert.Equal(t, "two", c.Get("k", ""))
	assert.Equal(t, uint64(2), c.Version("k"))
}

func TestUpdateUsesDefaultWhenAbsent(t *testing.T) {
	c := NewCache[int]()
	c.Update("n", 10, func(v int) int { return v + 1 })
	assert.Equal(t, 11, c.Get("n", 0))
}

func TestDeleteBumpsVersion(t *testing.T) {
	c := NewCache[int]()
	c.Set("k", 1)
	c.Delete("k")
	assert.Equal(t, uint64(2), c.Version("k"))
	assert.Equal(t, 5, c.Get("k", 5))
}

func TestSubscribeReceivesChangedKeys(t *testing.T) {
	c := NewCache[int]()
	ch, cancel := c.Subscribe()
	defer cancel()

	c.Set("resource-a", 1)
	select {
	case key := <-ch:
		require.Equal(t, "resource-a", key)
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	c := NewCache[int]()
	_, cancel := c.Subscribe()
	cancel()
	cancel() // must not panic on double cancel
	c.Set("k", 1)
}

func TestSetConcurrentWithCancelDoesNotPanic(t *testing.T) {
	c := NewCache[int]()
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				c.Set("k", 1)
			}
		}
	}()

	// Churn subscriptions while the writer notifies; a cancel racing a
	// notification must never close a channel out from under a send.
	for i := 0; i < 5000; i++ {
		ch, cancel := c.Subscribe()
		cancel()
		// channel must be closed after cancel, with no pending panic
		for range ch {
		}
	}
	close(done)
	wg.Wait()
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", n)
				_ = c.Get("k", 0)
				_ = c.Version("k")
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(800), c.Version("k"))
}

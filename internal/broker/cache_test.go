package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_MissThenStoreThenHit(t *testing.T) {
	c := NewCache(1024, nil)

	out := c.Lookup("k1")
	assert.Equal(t, CacheMiss, out.Kind)

	ticket := c.Begin("k1")
	c.Settle(ticket, []byte("body"), `"etag1"`, true)

	out = c.Lookup("k1")
	require.Equal(t, CacheFresh, out.Kind)
	assert.Equal(t, []byte("body"), out.Body)
	assert.Equal(t, `"etag1"`, out.Validator)
}

func TestCache_SingleFlightCoalescesConcurrentWaiters(t *testing.T) {
	c := NewCache(1024, nil)

	out := c.Lookup("k1")
	require.Equal(t, CacheMiss, out.Kind)
	ticket := c.Begin("k1")

	const waiters = 5
	var wg sync.WaitGroup
	registered := make(chan struct{}, waiters)
	results := make([][]byte, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			lookup := c.Lookup("k1")
			registered <- struct{}{}
			if lookup.Kind != CacheInFlight {
				return
			}
			settled := <-lookup.Waiter
			results[idx] = settled.Body
		}(i)
	}

	for i := 0; i < waiters; i++ {
		<-registered
	}
	c.Settle(ticket, []byte("coalesced"), `"etagX"`, true)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, []byte("coalesced"), r)
	}
}

func TestCache_EvictsLRUUnderByteCap(t *testing.T) {
	c := NewCache(10, nil)

	store := func(key, body string) {
		ticket := c.Begin(key)
		c.Settle(ticket, []byte(body), `"`+key+`"`, true)
	}

	store("a", "12345") // 5 bytes
	store("b", "12345") // 5 bytes, total 10 — at cap

	// Touch "a" so it becomes most-recently-used.
	out := c.Lookup("a")
	require.Equal(t, CacheFresh, out.Kind)

	// Adding "c" must evict "b" (least recently used), not "a".
	store("c", "12345")

	assert.Equal(t, CacheFresh, c.Lookup("a").Kind)
	assert.Equal(t, CacheMiss, c.Lookup("b").Kind)
	assert.Equal(t, CacheFresh, c.Lookup("c").Kind)
}

func TestCache_BypassRemovesEntry(t *testing.T) {
	c := NewCache(1024, nil)
	ticket := c.Begin("k1")
	c.Settle(ticket, []byte("body"), `"etag"`, true)

	c.Bypass("k1")

	assert.Equal(t, CacheMiss, c.Lookup("k1").Kind)
}

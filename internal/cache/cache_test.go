// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheCoherenceLatestWriteWins(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 10})
	c.Put([]byte("k"), []byte("v1"))
	c.Put([]byte("k"), []byte("v2"))

	v, ok := c.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestLRUEvictsLeastRecentlyInserted(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 2})
	c.Put([]byte("k1"), []byte("v1"))
	c.Put([]byte("k2"), []byte("v2"))
	c.Put([]byte("k3"), []byte("v3")) // overflow: k1 was least-recent, untouched

	_, ok := c.Get([]byte("k1"))
	require.False(t, ok, "k1 should have been evicted")

	_, ok = c.Get([]byte("k2"))
	require.True(t, ok)
	_, ok = c.Get([]byte("k3"))
	require.True(t, ok)
}

func TestLRUReadPromotesRecency(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 2})
	c.Put([]byte("k1"), []byte("v1"))
	c.Put([]byte("k2"), []byte("v2"))
	_, _ = c.Get([]byte("k1")) // k1 now most-recent; k2 becomes the victim
	c.Put([]byte("k3"), []byte("v3"))

	_, ok := c.Get([]byte("k2"))
	require.False(t, ok)
	_, ok = c.Get([]byte("k1"))
	require.True(t, ok)
}

func TestFIFOCapacityTwoEvictsOldest(t *testing.T) {
	// §8 concrete scenario: cache capacity 2, FIFO: put K1, K2, K3; get K1 -> miss.
	c := New(Options{Policy: FIFO, MaxSize: 2})
	c.Put([]byte("K1"), []byte("v1"))
	c.Put([]byte("K2"), []byte("v2"))
	c.Put([]byte("K3"), []byte("v3"))

	_, ok := c.Get([]byte("K1"))
	require.False(t, ok)
}

func TestFIFOUpdateDoesNotReorder(t *testing.T) {
	c := New(Options{Policy: FIFO, MaxSize: 2})
	c.Put([]byte("K1"), []byte("v1"))
	c.Put([]byte("K2"), []byte("v2"))
	c.Put([]byte("K1"), []byte("v1-updated")) // update in place, K1 stays oldest
	c.Put([]byte("K3"), []byte("v3"))         // overflow must evict K1, not K2

	_, ok := c.Get([]byte("K1"))
	require.False(t, ok)
	v, ok := c.Get([]byte("K2"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestLFUEvictsSmallestCounter(t *testing.T) {
	c := New(Options{Policy: LFU, MaxSize: 2})
	c.Put([]byte("k1"), []byte("v1"))
	c.Put([]byte("k2"), []byte("v2"))
	_, _ = c.Get([]byte("k1")) // bump k1's frequency above k2's
	c.Put([]byte("k3"), []byte("v3"))

	_, ok := c.Get([]byte("k2"))
	require.False(t, ok, "k2 had the smallest access count and should be evicted")
	_, ok = c.Get([]byte("k1"))
	require.True(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 10, TTL: 10 * time.Millisecond})
	c.Put([]byte("k"), []byte("v"))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get([]byte("k"))
	require.False(t, ok)
	require.Equal(t, 0, c.Size(), "expired entry must be removed in-line on touch")
}

func TestDeleteAndClear(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 10})
	c.Put([]byte("k1"), []byte("v1"))
	c.Put([]byte("k2"), []byte("v2"))
	c.Delete([]byte("k1"))
	_, ok := c.Get([]byte("k1"))
	require.False(t, ok)

	c.Clear()
	require.Equal(t, 0, c.Size())
}

func TestGetOrComputeFillsOnMiss(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 10})
	calls := 0
	compute := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	v, err := c.GetOrCompute([]byte("k"), compute)
	require.NoError(t, err)
	require.Equal(t, []byte("computed"), v)

	v, err = c.GetOrCompute([]byte("k"), compute)
	require.NoError(t, err)
	require.Equal(t, []byte("computed"), v)
	require.Equal(t, 1, calls, "thunk must run at most once per fill")
}

func TestGetOrComputePropagatesError(t *testing.T) {
	c := New(Options{Policy: LRU, MaxSize: 10})
	wantErr := errors.New("boom")
	_, err := c.GetOrCompute([]byte("k"), func() ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 0, c.Size(), "a failed compute must not populate the cache")
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package lockmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

func TestExclusiveExcludesShared(t *testing.T) {
	m := New(Config{})
	a := NewHolderID()
	b := NewHolderID()

	require.NoError(t, m.AcquireExclusive(a, "k1", 10*time.Millisecond))

	err := m.AcquireShared(b, "k1", 10*time.Millisecond)
	require.Error(t, err)
	require.ErrorIs(t, err, amdberrors.ErrLockTimeout)

	m.ReleaseExclusive(a, "k1")
	require.NoError(t, m.AcquireShared(b, "k1", 10*time.Millisecond))
}

func TestMultipleSharedHoldersCoexist(t *testing.T) {
	m := New(Config{})
	a := NewHolderID()
	b := NewHolderID()

	require.NoError(t, m.AcquireShared(a, "k1", time.Millisecond))
	require.NoError(t, m.AcquireShared(b, "k1", time.Millisecond))
}

func TestExclusiveWaitsThenSucceeds(t *testing.T) {
	m := New(Config{})
	a := NewHolderID()
	b := NewHolderID()

	require.NoError(t, m.AcquireExclusive(a, "k1", 0))

	done := make(chan error, 1)
	go func() {
		done <- m.AcquireExclusive(b, "k1", time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	m.ReleaseExclusive(a, "k1")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("exclusive acquisition never woke up after release")
	}
}

func TestReleaseNonHeldLockIsNoop(t *testing.T) {
	m := New(Config{})
	require.NotPanics(t, func() {
		m.ReleaseShared(NewHolderID(), "nope")
		m.ReleaseExclusive(NewHolderID(), "nope")
	})
}

func TestDeadlockCycleIsBroken(t *testing.T) {
	m := New(Config{DeadlockInterval: time.Millisecond})
	a := NewHolderID()
	b := NewHolderID()

	require.NoError(t, m.AcquireExclusive(a, "k1", 0))
	require.NoError(t, m.AcquireExclusive(b, "k2", 0))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = m.AcquireExclusive(a, "k2", 2*time.Second)
	}()
	go func() {
		defer wg.Done()
		_ = m.AcquireExclusive(b, "k1", 2*time.Second)
	}()

	// Give both goroutines time to register as waiting, then break the cycle.
	time.Sleep(50 * time.Millisecond)

	var broke bool
	for i := 0; i < 50 && !broke; i++ {
		broke = m.CheckDeadlock(true)
		if !broke {
			time.Sleep(10 * time.Millisecond)
		}
	}
	require.True(t, broke, "deadlock detector should have broken the cycle")

	wg.Wait()
}

func TestCheckDeadlockRateLimitedUnlessForced(t *testing.T) {
	m := New(Config{DeadlockInterval: time.Hour})
	require.False(t, m.CheckDeadlock(false))

	// Leave a lock that has outlived its timeout, so a sweep that actually
	// runs has something to expire.
	require.NoError(t, m.AcquireExclusive(NewHolderID(), "k1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	require.False(t, m.CheckDeadlock(false), "second call within the interval must be rate-limited")
	require.True(t, m.CheckDeadlock(true), "a forced sweep must run and expire the timed-out lock")
}

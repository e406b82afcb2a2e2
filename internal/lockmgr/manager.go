// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package lockmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

// Mode is the lock discipline requested for a key.
type Mode string

const (
	Shared    Mode = "shared"
	Exclusive Mode = "exclusive"
)

// DefaultDeadlockInterval is how often CheckDeadlock is allowed to run its
// full sweep when called opportunistically; CheckDeadlock(true) always forces
// it regardless of this rate limit (§9 DESIGN NOTES, "Deadlock sweep
// cadence").
const DefaultDeadlockInterval = 5 * time.Second

// keyState tracks who currently holds a key and who is waiting on it.
type keyState struct {
	readers   map[string]struct{} // holder ID -> present
	writer    string              // holder ID, "" if none
	mode      Mode
	acquired  time.Time
	timeout   time.Duration // 0 means "wait indefinitely" was requested
	hasDeadln bool
}

func (s *keyState) locked() bool {
	return s.writer != "" || len(s.readers) > 0
}

// Manager is the lock table: a mutex-guarded map of per-key lock state plus
// a wait-for registry used for deadlock detection.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond

	keys map[string]*keyState
	// waiting[holderID] is the set of keys that holder is currently blocked
	// acquiring. Populated only while a goroutine is inside cond.Wait.
	waiting map[string]map[string]struct{}

	defaultTimeout   time.Duration
	deadlockInterval time.Duration
	lastSweep        time.Time
}

// Config configures a Manager.
type Config struct {
	DefaultTimeout   time.Duration // 0 means wait indefinitely by default
	DeadlockInterval time.Duration // 0 uses DefaultDeadlockInterval
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	if cfg.DeadlockInterval <= 0 {
		cfg.DeadlockInterval = DefaultDeadlockInterval
	}
	m := &Manager{
		keys:             make(map[string]*keyState),
		waiting:          make(map[string]map[string]struct{}),
		defaultTimeout:   cfg.DefaultTimeout,
		deadlockInterval: cfg.DeadlockInterval,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// AcquireShared blocks until key carries no exclusive lock, or until timeout
// elapses. A timeout of 0 falls back to the manager's configured default; a
// negative timeout waits indefinitely. On timeout it returns
// amdberrors.ErrLockTimeout and leaves no state change.
func (m *Manager) AcquireShared(holderID, key string, timeout time.Duration) error {
	return m.acquire(holderID, key, Shared, timeout)
}

// ReleaseShared releases holderID's shared lock on key. Releasing a lock the
// holder does not hold is a no-op.
func (m *Manager) ReleaseShared(holderID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.keys[key]
	if !ok {
		return
	}
	delete(s.readers, holderID)
	if len(s.readers) == 0 && s.writer == "" {
		delete(m.keys, key)
	}
	m.cond.Broadcast()
}

// AcquireExclusive blocks until key carries no lock of any kind, or until
// timeout elapses.
func (m *Manager) AcquireExclusive(holderID, key string, timeout time.Duration) error {
	return m.acquire(holderID, key, Exclusive, timeout)
}

// ReleaseExclusive releases holderID's exclusive lock on key. Releasing a
// lock the holder does not hold is a no-op.
func (m *Manager) ReleaseExclusive(holderID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.keys[key]
	if !ok || s.writer != holderID {
		return
	}
	delete(m.keys, key)
	m.cond.Broadcast()
}

func (m *Manager) acquire(holderID, key string, mode Mode, timeout time.Duration) error {
	if timeout == 0 {
		timeout = m.defaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for m.conflicts(key, mode) {
		if hasDeadline && !time.Now().Before(deadline) {
			return fmt.Errorf("%w: key %q held by a conflicting lock", amdberrors.ErrLockTimeout, key)
		}

		m.markWaiting(holderID, key)
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				m.unmarkWaiting(holderID, key)
				return fmt.Errorf("%w: key %q held by a conflicting lock", amdberrors.ErrLockTimeout, key)
			}
			timer := time.AfterFunc(remaining, func() {
				m.mu.Lock()
				m.cond.Broadcast()
				m.mu.Unlock()
			})
			m.cond.Wait()
			timer.Stop()
		} else {
			m.cond.Wait()
		}
		m.unmarkWaiting(holderID, key)
	}

	s, ok := m.keys[key]
	if !ok {
		s = &keyState{readers: make(map[string]struct{})}
		m.keys[key] = s
	}
	s.mode = mode
	s.acquired = time.Now()
	s.timeout = timeout
	s.hasDeadln = hasDeadline
	if mode == Exclusive {
		s.writer = holderID
	} else {
		s.readers[holderID] = struct{}{}
	}
	return nil
}

// conflicts reports whether acquiring mode on key would conflict with its
// current holders, per §3 invariant 3: shared and exclusive are mutually
// exclusive, and exclusive is exclusive of everything including itself.
func (m *Manager) conflicts(key string, mode Mode) bool {
	s, ok := m.keys[key]
	if !ok {
		return false
	}
	if mode == Exclusive {
		return s.locked()
	}
	return s.writer != ""
}

func (m *Manager) markWaiting(holderID, key string) {
	set, ok := m.waiting[holderID]
	if !ok {
		set = make(map[string]struct{})
		m.waiting[holderID] = set
	}
	set[key] = struct{}{}
}

func (m *Manager) unmarkWaiting(holderID, key string) {
	if set, ok := m.waiting[holderID]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(m.waiting, holderID)
		}
	}
}

// LockInfo describes one held lock, for Inspect.
type LockInfo struct {
	Key        string
	Mode       Mode
	Holders    []string
	AcquiredAt time.Time
	Timeout    time.Duration
}

// Inspect returns a snapshot of every currently held lock.
func (m *Manager) Inspect() []LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LockInfo, 0, len(m.keys))
	for key, s := range m.keys {
		var holders []string
		if s.writer != "" {
			holders = []string{s.writer}
		} else {
			holders = make([]string, 0, len(s.readers))
			for h := range s.readers {
				holders = append(holders, h)
			}
			sort.Strings(holders)
		}
		out = append(out, LockInfo{
			Key:        key,
			Mode:       s.mode,
			Holders:    holders,
			AcquiredAt: s.acquired,
			Timeout:    s.timeout,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Size returns the number of keys currently under lock.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

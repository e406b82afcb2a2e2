// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/coretrusts/amdb/internal/amdberrors"
	"github.com/coretrusts/amdb/internal/digest"
)

// liveEntry is the in-memory index's view of one key: either a live value
// or a tombstone recording a pending/committed delete.
type liveEntry struct {
	value     []byte
	tombstone bool
}

// Config configures a Manager.
type Config struct {
	Store Store // required

	NotifySubject string // empty disables commit notifications
	NATSURL       string

	SigningKey string // hex-encoded secp256k1 key; empty disables attestation

	Logger *slog.Logger
}

// Stats summarises the version manager's current state, per §4.3's
// stats() contract.
type Stats struct {
	TotalKeys   int
	Version     uint64
	MerkleRoot  digest.Root
	RootHex     string
	RootBase58  string
	Attestation []byte // nil unless a signing key is configured
}

// Manager is the durable, versioned key/value core: an in-memory live
// index guarded for single-writer/multi-reader access, backed by a
// pluggable Store, with an incrementally-cached Merkle root.
type Manager struct {
	mu sync.RWMutex

	index   map[string]liveEntry
	version uint64

	rootValid bool
	root      digest.Root

	store    Store
	notifier *notifier
	attestor *attestor
	logger   *slog.Logger
}

// Open constructs a Manager and recovers any durable state from cfg.Store.
func Open(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: version.Config.Store is required", amdberrors.ErrInvalidArgument)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Store.Open(ctx); err != nil {
		return nil, err
	}

	nf, err := newNotifier(cfg.NATSURL, cfg.NotifySubject, logger)
	if err != nil {
		return nil, err
	}

	att, err := newAttestor(cfg.SigningKey)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		index:    make(map[string]liveEntry),
		store:    cfg.Store,
		notifier: nf,
		attestor: att,
		logger:   logger,
	}

	if err := m.recover(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// recover rehydrates the in-memory index from the store: a checkpoint
// snapshot (verified against its own recorded root), then the segment tail
// written since that checkpoint.
func (m *Manager) recover(ctx context.Context) error {
	records, ckpt, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	if ckpt != nil {
		for _, e := range ckpt.Snapshot {
			m.index[string(e.Key)] = liveEntry{value: e.Value}
		}
		m.invalidateRoot()
		gotRoot := m.computeRoot()
		if len(ckpt.Root) == digest.Size && gotRoot != toRoot(ckpt.Root) {
			return fmt.Errorf("%w: checkpoint root mismatch on recovery", amdberrors.ErrCorruption)
		}
		m.version = ckpt.Version
	}

	for _, rec := range records {
		if rec.Tombstone {
			m.index[string(rec.Key)] = liveEntry{tombstone: true}
		} else {
			m.index[string(rec.Key)] = liveEntry{value: rec.Value}
		}
		if rec.Version > m.version {
			m.version = rec.Version
		}
	}
	m.invalidateRoot()
	return nil
}

func toRoot(b []byte) digest.Root {
	var r digest.Root
	copy(r[:], b)
	return r
}

// Put durably queues (key, value) and returns its assigned version. §3
// invariant 6: versions only ever increase.
func (m *Manager) Put(ctx context.Context, key, value []byte) (uint64, error) {
	if err := validateLength(key, value); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	ver := m.version
	m.index[string(key)] = liveEntry{value: value}
	m.invalidateRoot()

	if err := m.store.Append(ctx, Record{Key: key, Value: value, Version: ver}); err != nil {
		return 0, err
	}

	m.notifier.publish(CommitEvent{Key: string(key), Version: ver, Root: hex.EncodeToString(m.computeRoot()[:])})
	return ver, nil
}

// Get returns the live value for key, or ok=false if it is absent or
// tombstoned.
func (m *Manager) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.index[string(key)]
	if !ok || e.tombstone {
		return nil, false
	}
	return e.value, true
}

// Delete marks key as tombstoned. It returns whether key previously existed
// (repeated deletes are idempotent and return false after the first call).
func (m *Manager) Delete(ctx context.Context, key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, existed := m.index[string(key)]
	existed = existed && !e.tombstone

	m.version++
	ver := m.version
	m.index[string(key)] = liveEntry{tombstone: true}
	m.invalidateRoot()

	if err := m.store.Append(ctx, Record{Key: key, Version: ver, Tombstone: true}); err != nil {
		return false, err
	}

	m.notifier.publish(CommitEvent{Key: string(key), Version: ver, Tombstone: true, Root: hex.EncodeToString(m.computeRoot()[:])})
	return existed, nil
}

// Enumerate returns every live key in canonical (ascending lexicographic)
// order, consistent with a single committed version.
func (m *Manager) Enumerate() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.liveKeysSortedLocked()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// MerkleRoot returns the Merkle root of the current live set.
func (m *Manager) MerkleRoot() digest.Root {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeRoot()
}

// Flush durably persists all state written since the last Flush: it syncs
// the store and writes a new checkpoint carrying a full live-set snapshot.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.computeRoot()
	snapshot := m.snapshotLocked()
	return m.store.Flush(ctx, snapshot, root, m.version)
}

// Stats returns a point-in-time summary of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.computeRoot()
	s := Stats{
		TotalKeys:  m.liveCountLocked(),
		Version:    m.version,
		MerkleRoot: root,
		RootHex:    hex.EncodeToString(root[:]),
		RootBase58: base58Root(root),
	}
	if m.attestor != nil {
		s.Attestation = m.attestor.sign(root)
	}
	return s
}

// Close releases the store and any optional notifier connection.
func (m *Manager) Close() error {
	m.notifier.close()
	return m.store.Close()
}

func validateLength(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key must not be empty", amdberrors.ErrInvalidArgument)
	}
	if len(key) > (1<<32)-1 {
		return fmt.Errorf("%w: key exceeds 2^32-1 bytes", amdberrors.ErrInvalidArgument)
	}
	if len(value) > (1<<32)-1 {
		return fmt.Errorf("%w: value exceeds 2^32-1 bytes", amdberrors.ErrInvalidArgument)
	}
	return nil
}

func (m *Manager) invalidateRoot() { m.rootValid = false }

// computeRoot recomputes the Merkle root from the live index if the cached
// value was invalidated by a mutation since the last computation. It updates
// the cached root, so callers must hold m.mu's write lock (or, as recover
// does during Open, have exclusive access to the Manager).
func (m *Manager) computeRoot() digest.Root {
	if m.rootValid {
		return m.root
	}

	keys := m.liveKeysSortedLocked()
	leaves := make([][digest.Size]byte, len(keys))
	for i, k := range keys {
		leaves[i] = digest.Leaf([]byte(k), m.index[k].value)
	}
	m.root = digest.Reduce(leaves)
	m.rootValid = true
	return m.root
}

func (m *Manager) liveKeysSortedLocked() []string {
	keys := make([]string, 0, len(m.index))
	for k, e := range m.index {
		if !e.tombstone {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) liveCountLocked() int {
	n := 0
	for _, e := range m.index {
		if !e.tombstone {
			n++
		}
	}
	return n
}

func (m *Manager) snapshotLocked() []SnapshotEntry {
	keys := m.liveKeysSortedLocked()
	out := make([]SnapshotEntry, len(keys))
	for i, k := range keys {
		out[i] = SnapshotEntry{Key: []byte(k), Value: m.index[k].value}
	}
	return out
}

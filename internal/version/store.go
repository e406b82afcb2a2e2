// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package version implements the durable, versioned key/value core: the
// in-memory live index, the incremental Merkle root, and the pluggable
// durability backend described in §4.3 and §6.
package version

import "context"

// Record is one persisted (key, value, version, tombstone) entry, framed on
// disk exactly as §6 specifies: 4-byte key length, key bytes, 4-byte value
// length, value bytes, 8-byte version, 1-byte flags.
type Record struct {
	Key       []byte
	Value     []byte
	Version   uint64
	Tombstone bool
}

// SnapshotEntry is one live (key, value) pair captured in a Checkpoint.
type SnapshotEntry struct {
	Key   []byte `msgpack:"key"`
	Value []byte `msgpack:"value"`
}

// Checkpoint is the durable summary of state at a given version: the Merkle
// root, the highest committed version, and a full copy-on-write snapshot of
// the live set at checkpoint time (one of the "acceptable strategies" §4.3
// names), so that recovery need only replay segment records written after
// it rather than the engine's entire history.
type Checkpoint struct {
	SchemaVersion int             `msgpack:"schema_version"`
	CheckpointID  string          `msgpack:"checkpoint_id"`
	Root          []byte          `msgpack:"root"`
	Version       uint64          `msgpack:"version"`
	Snapshot      []SnapshotEntry `msgpack:"snapshot"`
}

// Store is the durability backend the version manager writes through. Two
// implementations are provided: fileStore (the spec's native manifest +
// segment + checkpoint layout) and dynamoStore (an optional external
// backend). Both give the same on-restart guarantee: Load returns every
// record appended since the last checkpoint plus that checkpoint, if any.
type Store interface {
	// Open prepares the backend for use, creating it if it does not exist.
	Open(ctx context.Context) error
	// Append durably queues one record for the next Flush. Implementations
	// MAY buffer in memory; only Flush is required to survive a crash.
	Append(ctx context.Context, rec Record) error
	// Flush makes every Append since the last Flush (or Open) durable, then
	// writes a new checkpoint carrying a full snapshot of the live set plus
	// the given root and version, and retires the now-subsumed segment
	// history.
	Flush(ctx context.Context, snapshot []SnapshotEntry, root [32]byte, ver uint64) error
	// Load replays durable state: every record written since the last
	// checkpoint (or all of them, if the backend has no checkpoint
	// boundary), plus the last checkpoint, if any.
	Load(ctx context.Context) ([]Record, *Checkpoint, error)
	// Close releases any resources (file handles, connections) held open.
	Close() error
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

const (
	manifestSchemaVersion = 1
	manifestFile          = "manifest.msgpack"
	checkpointFile         = "checkpoint.msgpack"
	segmentFile            = "segment-0001.log"

	flagTombstone = byte(1 << 0)
)

// manifest records the schema version and the identifier of the most recent
// checkpoint, per §6's persisted-state layout.
type manifest struct {
	SchemaVersion int    `msgpack:"schema_version"`
	CheckpointID  string `msgpack:"checkpoint_id"`
}

// fileStore is the spec's native durability backend: a manifest file, a
// single append-only segment file framed exactly per §6, and a checkpoint
// file holding a full live-set snapshot plus the Merkle root.
type fileStore struct {
	mu      sync.Mutex
	dataDir string
	seg     *os.File
}

// NewFileStore constructs the default on-disk durability backend rooted at
// dataDir.
func NewFileStore(dataDir string) Store {
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("amdb: creating data dir: %w", err)
	}

	f, err := os.OpenFile(s.segPath(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("amdb: opening segment file: %w", err)
	}
	s.seg = f
	return nil
}

func (s *fileStore) segPath() string       { return filepath.Join(s.dataDir, segmentFile) }
func (s *fileStore) manifestPath() string   { return filepath.Join(s.dataDir, manifestFile) }
func (s *fileStore) checkpointPath() string { return filepath.Join(s.dataDir, checkpointFile) }

// Append writes one framed record to the active segment: 4-byte key length,
// key, 4-byte value length, value, 8-byte version, 1-byte flags.
func (s *fileStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rec.Key) > (1<<32)-1 || len(rec.Value) > (1<<32)-1 {
		return fmt.Errorf("%w: key or value exceeds 2^32-1 bytes", amdberrors.ErrInvalidArgument)
	}

	buf := make([]byte, 0, 4+len(rec.Key)+4+len(rec.Value)+8+1)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(rec.Key)))
	buf = append(buf, rec.Key...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(rec.Value)))
	buf = append(buf, rec.Value...)
	buf = binary.BigEndian.AppendUint64(buf, rec.Version)
	var flags byte
	if rec.Tombstone {
		flags |= flagTombstone
	}
	buf = append(buf, flags)

	if _, err := s.seg.Write(buf); err != nil {
		return fmt.Errorf("amdb: appending segment record: %w", err)
	}
	return nil
}

// Flush syncs the segment to disk, writes a new checkpoint carrying the full
// live-set snapshot, then retires (truncates) the segment: its entire
// history is now subsumed by the checkpoint's snapshot.
func (s *fileStore) Flush(_ context.Context, snapshot []SnapshotEntry, root [32]byte, ver uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seg.Sync(); err != nil {
		return fmt.Errorf("%w: syncing segment: %v", amdberrors.ErrDurabilityFailure, err)
	}

	ckpt := Checkpoint{
		SchemaVersion: manifestSchemaVersion,
		CheckpointID:  uuid.NewString(),
		Root:          root[:],
		Version:       ver,
		Snapshot:      snapshot,
	}
	if err := writeMsgpackAtomic(s.checkpointPath(), ckpt); err != nil {
		return fmt.Errorf("%w: writing checkpoint: %v", amdberrors.ErrDurabilityFailure, err)
	}

	man := manifest{SchemaVersion: manifestSchemaVersion, CheckpointID: ckpt.CheckpointID}
	if err := writeMsgpackAtomic(s.manifestPath(), man); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", amdberrors.ErrDurabilityFailure, err)
	}

	if err := s.seg.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncating segment after checkpoint: %v", amdberrors.ErrDurabilityFailure, err)
	}
	if _, err := s.seg.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewinding segment after checkpoint: %v", amdberrors.ErrDurabilityFailure, err)
	}
	return nil
}

// Load reads the manifest and checkpoint (if any) and replays every record
// written to the segment since that checkpoint.
func (s *fileStore) Load(_ context.Context) ([]Record, *Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ckpt *Checkpoint
	if _, err := os.Stat(s.manifestPath()); err == nil {
		var man manifest
		if err := readMsgpack(s.manifestPath(), &man); err != nil {
			return nil, nil, fmt.Errorf("%w: reading manifest: %v", amdberrors.ErrCorruption, err)
		}
		var c Checkpoint
		if err := readMsgpack(s.checkpointPath(), &c); err != nil {
			return nil, nil, fmt.Errorf("%w: reading checkpoint: %v", amdberrors.ErrCorruption, err)
		}
		if c.CheckpointID != man.CheckpointID {
			return nil, nil, fmt.Errorf("%w: manifest checkpoint id does not match checkpoint file", amdberrors.ErrCorruption)
		}
		ckpt = &c
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("amdb: statting manifest: %w", err)
	}

	records, err := readSegment(s.segPath())
	if err != nil {
		return nil, nil, err
	}
	return records, ckpt, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seg == nil {
		return nil
	}
	return s.seg.Close()
}

// readSegment replays every well-formed record in path, in file order. A
// clean end of file between frames ends the log; a frame that begins but
// cannot be read in full is reported as amdberrors.ErrCorruption.
func readSegment(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("amdb: opening segment for replay: %w", err)
	}
	defer f.Close()

	var records []Record
	for {
		rec, ok, err := readFrame(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", amdberrors.ErrCorruption, err)
		}
		if !ok {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// readFrame reads one record frame from f. It returns ok=false, err=nil at a
// clean EOF between frames, and ok=false with a non-nil err only if a frame
// began but could not be read in full (a genuinely truncated write).
func readFrame(f *os.File) (Record, bool, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		if err == io.EOF {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	keyLen := binary.BigEndian.Uint32(lenBuf[:])
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(f, key); err != nil {
		return Record{}, false, err
	}

	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return Record{}, false, err
	}
	valLen := binary.BigEndian.Uint32(lenBuf[:])
	value := make([]byte, valLen)
	if _, err := io.ReadFull(f, value); err != nil {
		return Record{}, false, err
	}

	var verBuf [8]byte
	if _, err := io.ReadFull(f, verBuf[:]); err != nil {
		return Record{}, false, err
	}
	version := binary.BigEndian.Uint64(verBuf[:])

	var flagBuf [1]byte
	if _, err := io.ReadFull(f, flagBuf[:]); err != nil {
		return Record{}, false, err
	}

	return Record{
		Key:       key,
		Value:     value,
		Version:   version,
		Tombstone: flagBuf[0]&flagTombstone != 0,
	}, true, nil
}

func writeMsgpackAtomic(path string, v interface{}) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMsgpack(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(b, v)
}

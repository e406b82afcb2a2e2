// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretrusts/amdb/internal/digest"
)

func openManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := Open(context.Background(), Config{Store: NewFileStore(dir)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestPutGetRoundTrip(t *testing.T) {
	m := openManager(t, t.TempDir())

	_, err := m.Put(context.Background(), []byte("alice"), []byte("100"))
	require.NoError(t, err)

	v, ok := m.Get([]byte("alice"))
	require.True(t, ok)
	require.Equal(t, []byte("100"), v)
}

func TestGetMissingKey(t *testing.T) {
	m := openManager(t, t.TempDir())
	_, ok := m.Get([]byte("nope"))
	require.False(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := openManager(t, t.TempDir())
	ctx := context.Background()

	_, err := m.Put(ctx, []byte("k"), []byte("v"))
	require.NoError(t, err)

	existed, err := m.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = m.Delete(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, existed)

	_, ok := m.Get([]byte("k"))
	require.False(t, ok)
}

func TestMerkleRootTwoLeaves(t *testing.T) {
	m := openManager(t, t.TempDir())
	ctx := context.Background()

	_, err := m.Put(ctx, []byte("alice"), []byte("100"))
	require.NoError(t, err)
	_, err = m.Put(ctx, []byte("bob"), []byte("50"))
	require.NoError(t, err)

	got := m.MerkleRoot()

	leafAlice := digest.Leaf([]byte("alice"), []byte("100"))
	leafBob := digest.Leaf([]byte("bob"), []byte("50"))
	want := digest.Reduce([][digest.Size]byte{leafAlice, leafBob})

	require.Equal(t, want, got)
}

func TestMerkleRootOrderIndependentOfInsertionOrder(t *testing.T) {
	ctx := context.Background()

	m1 := openManager(t, t.TempDir())
	_, _ = m1.Put(ctx, []byte("alice"), []byte("100"))
	_, _ = m1.Put(ctx, []byte("bob"), []byte("50"))

	m2 := openManager(t, t.TempDir())
	_, _ = m2.Put(ctx, []byte("bob"), []byte("50"))
	_, _ = m2.Put(ctx, []byte("alice"), []byte("100"))

	require.Equal(t, m1.MerkleRoot(), m2.MerkleRoot())
}

func TestEmptyStoreHasEmptyRoot(t *testing.T) {
	m := openManager(t, t.TempDir())
	require.Equal(t, digest.EmptyRoot(), m.MerkleRoot())
}

func TestDeletedKeyExcludedFromRoot(t *testing.T) {
	ctx := context.Background()

	withDelete := openManager(t, t.TempDir())
	_, _ = withDelete.Put(ctx, []byte("a"), []byte("1"))
	_, _ = withDelete.Put(ctx, []byte("b"), []byte("2"))
	_, _ = withDelete.Put(ctx, []byte("c"), []byte("3"))
	_, err := withDelete.Delete(ctx, []byte("b"))
	require.NoError(t, err)

	withoutB := openManager(t, t.TempDir())
	_, _ = withoutB.Put(ctx, []byte("a"), []byte("1"))
	_, _ = withoutB.Put(ctx, []byte("c"), []byte("3"))

	require.Equal(t, withoutB.MerkleRoot(), withDelete.MerkleRoot())
}

func TestEnumerateReturnsCanonicalOrder(t *testing.T) {
	m := openManager(t, t.TempDir())
	ctx := context.Background()

	for _, k := range []string{"charlie", "alice", "bob"} {
		_, err := m.Put(ctx, []byte(k), []byte("v"))
		require.NoError(t, err)
	}
	_, err := m.Delete(ctx, []byte("bob"))
	require.NoError(t, err)

	keys := m.Enumerate()
	require.Len(t, keys, 2)
	require.Equal(t, "alice", string(keys[0]))
	require.Equal(t, "charlie", string(keys[1]))
}

func TestFlushAndRecoverPreservesStateAndRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m := openManager(t, dir)
	_, err := m.Put(ctx, []byte("alice"), []byte("100"))
	require.NoError(t, err)
	_, err = m.Put(ctx, []byte("bob"), []byte("50"))
	require.NoError(t, err)
	rootBeforeFlush := m.MerkleRoot()

	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Close())

	reopened := openManager(t, dir)
	require.Equal(t, rootBeforeFlush, reopened.MerkleRoot())

	v, ok := reopened.Get([]byte("alice"))
	require.True(t, ok)
	require.Equal(t, []byte("100"), v)

	keys := reopened.Enumerate()
	require.Equal(t, [][]byte{[]byte("alice"), []byte("bob")}, keys)
}

func TestRecoverReplaysSegmentAfterCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m := openManager(t, dir)
	_, err := m.Put(ctx, []byte("alice"), []byte("100"))
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx))

	_, err = m.Put(ctx, []byte("bob"), []byte("50"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	reopened := openManager(t, dir)
	alice, ok := reopened.Get([]byte("alice"))
	require.True(t, ok)
	require.Equal(t, []byte("100"), alice)

	bob, ok := reopened.Get([]byte("bob"))
	require.True(t, ok)
	require.Equal(t, []byte("50"), bob)
}

func TestStatsReportsKeyCountAndVersion(t *testing.T) {
	m := openManager(t, t.TempDir())
	ctx := context.Background()

	_, err := m.Put(ctx, []byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = m.Put(ctx, []byte("b"), []byte("2"))
	require.NoError(t, err)

	stats := m.Stats()
	require.Equal(t, 2, stats.TotalKeys)
	require.Equal(t, uint64(2), stats.Version)
	require.NotEmpty(t, stats.RootHex)
	require.NotEmpty(t, stats.RootBase58)
	require.Nil(t, stats.Attestation)
}

func TestOpenRejectsNilStore(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	m := openManager(t, t.TempDir())
	_, err := m.Put(context.Background(), nil, []byte("v"))
	require.Error(t, err)
}

func TestManifestAndCheckpointFilesCreatedOnFlush(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	ctx := context.Background()

	_, err := m.Put(ctx, []byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, m.Flush(ctx))

	require.FileExists(t, filepath.Join(dir, manifestFile))
	require.FileExists(t, filepath.Join(dir, checkpointFile))
}

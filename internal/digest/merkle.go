// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package digest provides the content-addressed hashing primitives shared by
// every AmDb component: leaf hashing, node hashing, and the canonical Merkle
// root reduction over a live key/value set.
package digest

import "crypto/sha256"

// Size is the length in bytes of every digest produced by this package.
const Size = sha256.Size

// Root is a 256-bit Merkle root.
type Root [Size]byte

// emptyRoot is the stable root for a live set with zero entries, fixed to
// H("") so that an empty store always yields the same root across restarts.
var emptyRoot = sha256.Sum256(nil)

// EmptyRoot returns the canonical root of the empty live set.
func EmptyRoot() Root {
	return emptyRoot
}

// HashKey hashes a raw key.
func HashKey(key []byte) [Size]byte {
	return sha256.Sum256(key)
}

// HashValue hashes a raw value.
func HashValue(value []byte) [Size]byte {
	return sha256.Sum256(value)
}

// Leaf computes leaf_i = H(H(key) || H(value)) for one live record.
func Leaf(key, value []byte) [Size]byte {
	hk := HashKey(key)
	hv := HashValue(value)
	buf := make([]byte, 0, Size*2)
	buf = append(buf, hk[:]...)
	buf = append(buf, hv[:]...)
	return sha256.Sum256(buf)
}

// node hashes two child digests together, H(left || right).
func node(left, right [Size]byte) [Size]byte {
	buf := make([]byte, 0, Size*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// Reduce folds an ordered sequence of leaves into a single Merkle root via a
// binary tree: adjacent nodes are paired and hashed together; on an odd
// count at any level, the last node is duplicated. Callers MUST present
// leaves in canonical order (ascending lexicographic order of the underlying
// keys) — Reduce does not sort.
//
// An empty input yields EmptyRoot().
func Reduce(leaves [][Size]byte) Root {
	if len(leaves) == 0 {
		return Root(emptyRoot)
	}

	level := make([][Size]byte, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([][Size]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, node(level[i], level[i+1]))
			} else {
				next = append(next, node(level[i], level[i]))
			}
		}
		level = next
	}

	return Root(level[0])
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyRootStable(t *testing.T) {
	require.Equal(t, Root(EmptyRoot()), Reduce(nil))
	require.Equal(t, EmptyRoot(), EmptyRoot(), "root must be stable across calls")
}

func TestReduceTwoLeaves(t *testing.T) {
	l1 := Leaf([]byte("alice"), []byte("100"))
	l2 := Leaf([]byte("bob"), []byte("50"))

	got := Reduce([][Size]byte{l1, l2})
	want := Root(node(l1, l2))
	require.Equal(t, want, got)
}

func TestReduceOddCountDuplicatesLast(t *testing.T) {
	l1 := Leaf([]byte("a"), []byte("1"))
	l2 := Leaf([]byte("b"), []byte("2"))
	l3 := Leaf([]byte("c"), []byte("3"))

	got := Reduce([][Size]byte{l1, l2, l3})

	top := node(l1, l2)
	bottom := node(l3, l3)
	want := Root(node(top, bottom))
	require.Equal(t, want, got)
}

func TestReduceOrderSensitive(t *testing.T) {
	l1 := Leaf([]byte("a"), []byte("1"))
	l2 := Leaf([]byte("b"), []byte("2"))

	forward := Reduce([][Size]byte{l1, l2})
	backward := Reduce([][Size]byte{l2, l1})
	require.NotEqual(t, forward, backward, "leaf order must be canonical, not commutative")
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package lockmgr implements the per-key shared/exclusive lock manager with
// timeout-bounded waits and periodic deadlock detection.
package lockmgr

import (
	"context"

	"github.com/google/uuid"
)

// holderKey is the context key under which a logical holder ID travels with
// a call. Per §9 DESIGN NOTES ("Lock holder identity"), AmDb identifies lock
// holders by a logical ID minted once per caller rather than an OS thread
// ID — Go's unit of concurrency is the goroutine, which has no such identity.
type holderKeyType struct{}

var holderKey = holderKeyType{}

// NewHolderID mints a fresh logical holder identity.
func NewHolderID() string {
	return uuid.NewString()
}

// WithHolder attaches a holder ID to ctx for all lock calls made with it.
func WithHolder(ctx context.Context, holderID string) context.Context {
	return context.WithValue(ctx, holderKey, holderID)
}

// HolderFrom extracts the holder ID attached to ctx, minting one on the fly
// if the caller never set one — every lock call needs a stable identity even
// when the caller didn't opt in explicitly.
func HolderFrom(ctx context.Context) string {
	if id, ok := ctx.Value(holderKey).(string); ok && id != "" {
		return id
	}
	return NewHolderID()
}

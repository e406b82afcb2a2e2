// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package amdberrors defines the sentinel error taxonomy shared by every
// AmDb component. Callers use errors.Is against these sentinels; components
// wrap them with fmt.Errorf("%w: ...") to attach context.
package amdberrors

import "errors"

var (
	// ErrNotFound reports a read or delete of an absent key. Routine, not fatal.
	ErrNotFound = errors.New("amdb: not found")

	// ErrPermissionDenied reports a failed auth check.
	ErrPermissionDenied = errors.New("amdb: permission denied")

	// ErrLockTimeout reports a bounded lock acquisition that elapsed.
	ErrLockTimeout = errors.New("amdb: lock acquisition timed out")

	// ErrDeadlockAborted reports that the caller's lock was released as the
	// deadlock victim.
	ErrDeadlockAborted = errors.New("amdb: aborted to break a deadlock")

	// ErrDurabilityFailure reports that flush could not persist committed
	// writes. Fatal: the engine should refuse further writes until reopened.
	ErrDurabilityFailure = errors.New("amdb: durability failure")

	// ErrCorruption reports a Merkle mismatch or truncated frame found during
	// recovery. Fatal.
	ErrCorruption = errors.New("amdb: corruption detected")

	// ErrInvalidArgument reports a key/value exceeding length bounds, a
	// duplicate user, or a rejected weak password.
	ErrInvalidArgument = errors.New("amdb: invalid argument")
)

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import "time"

// User is one registered principal: a username, a hashed password, the
// permission set it holds, and bookkeeping timestamps.
type User struct {
	Name         string
	PasswordHash string
	Permissions  Set
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read, Write)))

	token, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)
	require.NotEmpty(t, token)

	claims, ok := m.VerifyToken(token)
	require.True(t, ok)
	require.Equal(t, "alice", claims.Username)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	_, ok := m.Authenticate("alice", "wrong")
	require.False(t, ok)
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	_, ok := m.Authenticate("nobody", "whatever")
	require.False(t, ok)
}

func TestRevokeTokenInvalidatesIt(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	token, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)

	m.RevokeToken(token)

	_, ok = m.VerifyToken(token)
	require.False(t, ok)
}

func TestExpiredTokenRejected(t *testing.T) {
	m, err := New(Config{TokenTTL: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	token, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)

	_, ok = m.VerifyToken(token)
	require.False(t, ok)
}

func TestCheckPermissionReadOnlyDeniesWrite(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	token, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)

	require.True(t, m.CheckPermission(token, Read))
	require.False(t, m.CheckPermission(token, Write))
}

func TestAdminSatisfiesAnyCheck(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("root", "s3cr3t", NewSet(Admin)))

	token, ok := m.Authenticate("root", "s3cr3t")
	require.True(t, ok)

	require.True(t, m.CheckPermission(token, Read))
	require.True(t, m.CheckPermission(token, Write))
	require.True(t, m.CheckPermission(token, Delete))
}

func TestCheckAccessMapsOperationToPermission(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Write)))

	token, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)

	require.True(t, m.CheckAccess(token, "put", "K1"))
	require.True(t, m.CheckAccess(token, "update", "K1"))
	require.False(t, m.CheckAccess(token, "delete", "K1"))
	require.False(t, m.CheckAccess(token, "get", "K1"))
}

func TestHasUsersReflectsRegistrations(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.False(t, m.HasUsers())

	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))
	require.True(t, m.HasUsers())
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	err = m.CreateUser("alice", "other", NewSet(Read))
	require.Error(t, err)
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	m, err := New(Config{PasswordHasher: BcryptHasher})
	require.NoError(t, err)
	require.NoError(t, m.CreateUser("alice", "hunter2", NewSet(Read)))

	_, ok := m.Authenticate("alice", "hunter2")
	require.True(t, ok)

	_, ok = m.Authenticate("alice", "wrong")
	require.False(t, ok)
}

func TestPermissionForOpUnknownOpRequiresAdmin(t *testing.T) {
	require.Equal(t, Admin, PermissionForOp("frobnicate"))
}

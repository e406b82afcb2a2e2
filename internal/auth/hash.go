// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HasherName selects a Hasher implementation via Config.PasswordHasher.
type HasherName string

const (
	SHA256Hasher HasherName = "sha256"
	BcryptHasher HasherName = "bcrypt"
)

// Hasher hashes and verifies passwords. The spec's default is a plain
// SHA-256 digest; bcrypt is wired as the memory-hard alternative §4.4 invites
// ("a production deployment SHOULD substitute a memory-hard KDF").
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// NewHasher resolves a HasherName to its Hasher, defaulting to SHA-256 for
// an empty or unrecognised name.
func NewHasher(name HasherName) Hasher {
	switch name {
	case BcryptHasher:
		return bcryptHasher{}
	default:
		return sha256Hasher{}
	}
}

type sha256Hasher struct{}

func (sha256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify compares in constant time, per §4.4's note that implementers
// should avoid leaking timing information on password checks.
func (sha256Hasher) Verify(password, stored string) bool {
	sum := sha256.Sum256([]byte(password))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1
}

type bcryptHasher struct{}

func (bcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("amdb: hashing password: %w", err)
	}
	return string(b), nil
}

// Verify relies on bcrypt's own constant-time comparison.
func (bcryptHasher) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

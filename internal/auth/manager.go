// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package auth implements the authentication and authorisation gate: user
// registration, JWT-backed bearer tokens, revocation, and the
// operation-to-permission mapping the façade consults before every mutation.
package auth

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

// DefaultTokenTTL is the token lifetime used when Config.TokenTTL is zero,
// per §4.4.
const DefaultTokenTTL = 3600 * time.Second

// Claims is the JWT payload amdb mints for an authenticated session.
type Claims struct {
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Config configures a Manager.
type Config struct {
	Secret         []byte // HMAC signing secret; random 32 bytes if nil
	TokenTTL       time.Duration
	PasswordHasher HasherName
}

// Manager is the authentication/authorisation gate described in §4.4: it
// owns the user registry, mints and verifies bearer tokens, and maintains
// the revocation denylist.
type Manager struct {
	mu     sync.RWMutex
	users  map[string]*User
	secret []byte
	ttl    time.Duration
	hasher Hasher

	// denylist holds revoked jti values until their token's own expiry,
	// swept lazily by go-cache's janitor goroutine rather than a
	// hand-rolled timer. (The cache tier does not use go-cache; it checks
	// TTL in-line on read.)
	denylist *cache.Cache
}

// New constructs a Manager. A nil or empty Config.Secret is replaced with 32
// random bytes, per §4.4 ("The secret is created at manager construction").
func New(cfg Config) (*Manager, error) {
	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("amdb: generating token secret: %w", err)
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Manager{
		users:    make(map[string]*User),
		secret:   secret,
		ttl:      ttl,
		hasher:   NewHasher(cfg.PasswordHasher),
		denylist: cache.New(ttl, ttl/2),
	}, nil
}

// HasUsers reports whether any user has been registered. The façade
// consults this to implement §4.6's "when auth is disabled (no users
// registered), all operations proceed without token checks."
func (m *Manager) HasUsers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users) > 0
}

// CreateUser registers a new user with the given password and permission
// set. It returns amdberrors.ErrInvalidArgument if name is already taken.
func (m *Manager) CreateUser(name, password string, perms Set) error {
	if name == "" {
		return fmt.Errorf("%w: username must not be empty", amdberrors.ErrInvalidArgument)
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[name]; exists {
		return fmt.Errorf("%w: user %q already exists", amdberrors.ErrInvalidArgument, name)
	}
	m.users[name] = &User{
		Name:         name,
		PasswordHash: hash,
		Permissions:  perms,
		CreatedAt:    time.Now(),
	}
	return nil
}

// Authenticate checks (name, password) and, on success, mints a signed
// bearer token. On unknown user or bad password it returns ok=false without
// distinguishing the two, per §4.4.
func (m *Manager) Authenticate(name, password string) (token string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, exists := m.users[name]
	if !exists {
		// Still run a hash+compare against a fixed dummy value so an
		// unknown-username request costs the same as a wrong-password one.
		m.hasher.Verify(password, unknownUserSentinel)
		return "", false
	}
	if !m.hasher.Verify(password, u.PasswordHash) {
		return "", false
	}

	u.LastLogin = time.Now()

	now := time.Now()
	claims := Claims{
		Username:    name,
		Permissions: u.Permissions.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", false
	}
	return signed, true
}

const unknownUserSentinel = "$2a$10$" + "0000000000000000000000" + "0000000000000000000000000000000"

// VerifyToken validates a bearer token's signature, expiry, and revocation
// status, returning its claims. Expired or revoked tokens are rejected.
func (m *Manager) VerifyToken(token string) (*Claims, bool) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}

	if _, revoked := m.denylist.Get(claims.ID); revoked {
		return nil, false
	}
	return claims, true
}

// RevokeToken adds token's jti to the denylist until its natural expiry.
func (m *Manager) RevokeToken(token string) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return
	}

	ttl := m.ttl
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	m.denylist.Set(claims.ID, struct{}{}, ttl)
}

// CheckPermission reports whether token's claims satisfy p.
func (m *Manager) CheckPermission(token string, p Permission) bool {
	claims, ok := m.VerifyToken(token)
	if !ok {
		return false
	}
	return SetFromStrings(claims.Permissions).Has(p)
}

// CheckAccess maps op to a permission via PermissionForOp and checks token
// against it. resource is accepted for symmetry with §4.4's contract and
// future resource-scoped policies; the current engine is not
// resource-partitioned, so it does not affect the result.
func (m *Manager) CheckAccess(token, op, resource string) bool {
	return m.CheckPermission(token, PermissionForOp(op))
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package amdb composes the four pillars — the cache tier, the lock
// manager, the versioned store, and the authentication gate — into the
// database façade described in §4.6: a single embedded key/value engine
// that produces a verifiable Merkle root over its live state.
package amdb

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/coretrusts/amdb/internal/amdberrors"
	"github.com/coretrusts/amdb/internal/auth"
	"github.com/coretrusts/amdb/internal/cache"
	"github.com/coretrusts/amdb/internal/crypt"
	"github.com/coretrusts/amdb/internal/digest"
	"github.com/coretrusts/amdb/internal/lockmgr"
	"github.com/coretrusts/amdb/internal/version"
)

const errKey = "error"

// DB is the AmDb façade: the single entry point embedding applications use.
type DB struct {
	cfg *Config

	cache  *cache.Cache
	locks  *lockmgr.Manager
	ver    *version.Manager
	auth   *auth.Manager
	cipher *crypt.Cipher

	logger      *slog.Logger
	stopSweeper func()
}

// Open constructs every pillar and recovers the version manager's durable
// state. Callers must call Close when done.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	logOpts := &slog.HandlerOptions{}
	if cfg.Debug {
		logOpts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, logOpts))

	authMgr, err := auth.New(auth.Config{
		Secret:         []byte(cfg.JWTSecret),
		TokenTTL:       cfg.TokenTTL,
		PasswordHasher: cfg.PasswordHasher,
	})
	if err != nil {
		logger.With(errKey, err).Error("error initializing auth manager")
		return nil, err
	}

	cipher, err := crypt.New(cfg.EncryptionKey)
	if err != nil {
		logger.With(errKey, err).Error("error initializing encryption helper")
		return nil, err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.With(errKey, err).Error("error initializing durability backend")
		return nil, err
	}

	verMgr, err := version.Open(ctx, version.Config{
		Store:         store,
		NotifySubject: cfg.NotifySubject,
		NATSURL:       cfg.NATSURL,
		SigningKey:    cfg.SigningKey,
		Logger:        logger,
	})
	if err != nil {
		logger.With(errKey, err).Error("error recovering version manager")
		return nil, err
	}

	lockMgr := lockmgr.New(lockmgr.Config{
		DefaultTimeout:   cfg.LockDefaultTimeout,
		DeadlockInterval: cfg.DeadlockInterval,
	})
	stopSweeper := lockMgr.StartSweeper()

	db := &DB{
		cfg: cfg,
		cache: cache.New(cache.Options{
			Policy:  cfg.CachePolicy,
			MaxSize: cfg.CacheSize,
			TTL:     cfg.CacheTTL,
		}),
		locks:       lockMgr,
		ver:         verMgr,
		auth:        authMgr,
		cipher:      cipher,
		logger:      logger,
		stopSweeper: stopSweeper,
	}

	logger.Debug("amdb opened", "store_backend", cfg.StoreBackend, "cache_policy", string(cfg.CachePolicy))
	return db, nil
}

func newStore(ctx context.Context, cfg *Config) (version.Store, error) {
	if cfg.StoreBackend == "dynamodb" {
		return version.NewDynamoStore(ctx, cfg.DynamoDBTable, version.DynamoEndpointOverride{
			URL:       cfg.DynamoDBEndpoint,
			AccessKey: cfg.DynamoDBAccessKey,
			SecretKey: cfg.DynamoDBSecretKey,
		})
	}
	return version.NewFileStore(cfg.DataDir), nil
}

// Put writes (key, value), auth-checking WRITE, exclusive-locking key,
// committing through the version manager, then filling the cache — exactly
// the order §4.6 specifies.
func (db *DB) Put(ctx context.Context, key, value []byte, token string) error {
	db.logger.Debug("put", "key", string(key))

	if err := db.checkAccess(token, "put"); err != nil {
		return err
	}

	holder := lockmgr.HolderFrom(ctx)
	if err := db.locks.AcquireExclusive(holder, string(key), db.cfg.LockDefaultTimeout); err != nil {
		db.logger.With(errKey, err).Warn("put: lock acquisition failed", "key", string(key))
		return err
	}
	defer db.locks.ReleaseExclusive(holder, string(key))

	if _, err := db.ver.Put(ctx, key, value); err != nil {
		db.logger.With(errKey, err).Error("put: version manager write failed", "key", string(key))
		return err
	}
	db.cache.Put(key, value)
	return nil
}

// Get reads key, auth-checking READ, probing the cache first and falling
// through to the version manager under a shared lock on a miss.
func (db *DB) Get(ctx context.Context, key []byte, token string) ([]byte, error) {
	db.logger.Debug("get", "key", string(key))

	if err := db.checkAccess(token, "get"); err != nil {
		return nil, err
	}

	if v, ok := db.cache.Get(key); ok {
		return v, nil
	}

	holder := lockmgr.HolderFrom(ctx)
	if err := db.locks.AcquireShared(holder, string(key), db.cfg.LockDefaultTimeout); err != nil {
		db.logger.With(errKey, err).Warn("get: lock acquisition failed", "key", string(key))
		return nil, err
	}
	defer db.locks.ReleaseShared(holder, string(key))

	v, ok := db.ver.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q", amdberrors.ErrNotFound, string(key))
	}
	db.cache.Put(key, v)
	return v, nil
}

// Delete removes key, auth-checking DELETE, and returns whether it existed.
func (db *DB) Delete(ctx context.Context, key []byte, token string) (bool, error) {
	db.logger.Debug("delete", "key", string(key))

	if err := db.checkAccess(token, "delete"); err != nil {
		return false, err
	}

	holder := lockmgr.HolderFrom(ctx)
	if err := db.locks.AcquireExclusive(holder, string(key), db.cfg.LockDefaultTimeout); err != nil {
		db.logger.With(errKey, err).Warn("delete: lock acquisition failed", "key", string(key))
		return false, err
	}
	defer db.locks.ReleaseExclusive(holder, string(key))

	existed, err := db.ver.Delete(ctx, key)
	if err != nil {
		db.logger.With(errKey, err).Error("delete: version manager write failed", "key", string(key))
		return false, err
	}
	db.cache.Delete(key)
	return existed, nil
}

// Enumerate returns every live key with the given prefix, in canonical
// order. An empty prefix returns every live key.
func (db *DB) Enumerate(prefix []byte) [][]byte {
	all := db.ver.Enumerate()
	if len(prefix) == 0 {
		return all
	}
	out := make([][]byte, 0, len(all))
	for _, k := range all {
		if len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix) {
			out = append(out, k)
		}
	}
	return out
}

// Flush persists every durable write since the last Flush.
func (db *DB) Flush(ctx context.Context) error {
	if err := db.ver.Flush(ctx); err != nil {
		db.logger.With(errKey, err).Error("flush failed")
		return err
	}
	return nil
}

// Stats merges the cache size, lock table size, and version manager stats
// (including the current Merkle root) into a single snapshot.
type Stats struct {
	CacheSize   int
	LockCount   int
	TotalKeys   int
	Version     uint64
	MerkleRoot  digest.Root
	RootHex     string
	RootBase58  string
	Attestation []byte
}

func (db *DB) Stats() Stats {
	vs := db.ver.Stats()
	return Stats{
		CacheSize:   db.cache.Size(),
		LockCount:   db.locks.Size(),
		TotalKeys:   vs.TotalKeys,
		Version:     vs.Version,
		MerkleRoot:  vs.MerkleRoot,
		RootHex:     vs.RootHex,
		RootBase58:  vs.RootBase58,
		Attestation: vs.Attestation,
	}
}

// CreateUser registers a new user in the auth gate.
func (db *DB) CreateUser(name, password string, perms auth.Set) error {
	return db.auth.CreateUser(name, password, perms)
}

// Authenticate exchanges (name, password) for a bearer token.
func (db *DB) Authenticate(name, password string) (token string, ok bool) {
	return db.auth.Authenticate(name, password)
}

// RevokeToken invalidates token ahead of its natural expiry.
func (db *DB) RevokeToken(token string) {
	db.auth.RevokeToken(token)
}

// Encrypt passes plaintext through the optional AES-256-CBC helper.
func (db *DB) Encrypt(plaintext []byte) ([]byte, error) {
	return db.cipher.Encrypt(plaintext)
}

// Decrypt passes ciphertext through the optional AES-256-CBC helper.
func (db *DB) Decrypt(ciphertext []byte) ([]byte, error) {
	return db.cipher.Decrypt(ciphertext)
}

// checkAccess enforces §4.6's "when auth is disabled (no users registered),
// all operations proceed without token checks."
func (db *DB) checkAccess(token, op string) error {
	if !db.auth.HasUsers() {
		return nil
	}
	if !db.auth.CheckAccess(token, op, "") {
		return fmt.Errorf("%w: operation %q denied", amdberrors.ErrPermissionDenied, op)
	}
	return nil
}

// Close stops the background deadlock sweeper, closes the version manager
// (which closes its store and any notifier connection).
func (db *DB) Close() error {
	db.stopSweeper()
	return db.ver.Close()
}

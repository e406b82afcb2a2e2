// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package amdb

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coretrusts/amdb/internal/auth"
	"github.com/coretrusts/amdb/internal/cache"
)

// Config holds every configurable knob of an AmDb instance, loaded either
// programmatically or via LoadConfig from the environment.
type Config struct {
	// DataDir is where the file store backend keeps its manifest, segment,
	// and checkpoint files. Unused when StoreBackend is "dynamodb".
	DataDir string

	// StoreBackend selects the version manager's durability backend:
	// "file" (default) or "dynamodb".
	StoreBackend  string
	DynamoDBTable string

	// DynamoDBEndpoint, DynamoDBAccessKey, and DynamoDBSecretKey override the
	// default AWS credential/endpoint resolution chain, for pointing the
	// dynamodb backend at a local DynamoDB instance during development.
	DynamoDBEndpoint  string
	DynamoDBAccessKey string
	DynamoDBSecretKey string

	// NotifySubject, when non-empty, publishes a commit event to this NATS
	// subject after every durable put/delete.
	NotifySubject string
	NATSURL       string

	// SigningKey, when set, signs every checkpoint's Merkle root with
	// secp256k1 and exposes the signature via Stats().
	SigningKey string

	// CachePolicy selects the cache tier's eviction strategy: lru (default),
	// lfu, or fifo.
	CachePolicy cache.Policy
	CacheSize   int
	CacheTTL    time.Duration

	// LockDefaultTimeout is how long AcquireShared/AcquireExclusive wait
	// before returning amdberrors.ErrLockTimeout. 0 waits indefinitely.
	LockDefaultTimeout time.Duration
	DeadlockInterval   time.Duration

	// PasswordHasher selects the auth gate's password hashing scheme:
	// sha256 (default) or bcrypt.
	PasswordHasher auth.HasherName
	// JWTSecret is the HMAC secret used to sign bearer tokens. A random
	// 32-byte secret is generated if unset.
	JWTSecret string
	TokenTTL  time.Duration

	// EncryptionKey, when 32 bytes, enables the optional AES-256-CBC helper.
	EncryptionKey []byte

	Debug bool
}

// LoadConfig loads configuration from environment variables, the way the
// teacher's cmd packages load theirs: defaults applied after reading, no
// framework, explicit validation errors wrapped with fmt.Errorf.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataDir:            os.Getenv("AMDB_DATA_DIR"),
		StoreBackend:       os.Getenv("AMDB_STORE_BACKEND"),
		DynamoDBTable:      os.Getenv("AMDB_DYNAMODB_TABLE"),
		DynamoDBEndpoint:   os.Getenv("AMDB_DYNAMODB_ENDPOINT"),
		DynamoDBAccessKey:  os.Getenv("AMDB_DYNAMODB_ACCESS_KEY"),
		DynamoDBSecretKey:  os.Getenv("AMDB_DYNAMODB_SECRET_KEY"),
		NotifySubject:      os.Getenv("AMDB_NOTIFY_SUBJECT"),
		NATSURL:            os.Getenv("AMDB_NATS_URL"),
		SigningKey:         os.Getenv("AMDB_SIGNING_KEY"),
		CachePolicy:        cache.Policy(strings.ToLower(os.Getenv("AMDB_CACHE_POLICY"))),
		CacheSize:          parseIntEnv("AMDB_CACHE_SIZE", 10000),
		CacheTTL:           time.Duration(parseIntEnv("AMDB_CACHE_TTL_MS", 0)) * time.Millisecond,
		LockDefaultTimeout: time.Duration(parseIntEnv("AMDB_LOCK_TIMEOUT_MS", 0)) * time.Millisecond,
		DeadlockInterval:   time.Duration(parseIntEnv("AMDB_DEADLOCK_INTERVAL_MS", 5000)) * time.Millisecond,
		PasswordHasher:     auth.HasherName(strings.ToLower(os.Getenv("AMDB_PASSWORD_HASHER"))),
		JWTSecret:          os.Getenv("AMDB_JWT_SECRET"),
		TokenTTL:           time.Duration(parseIntEnv("AMDB_TOKEN_TTL_SEC", 3600)) * time.Second,
		Debug:              parseBooleanEnv("AMDB_DEBUG"),
	}

	if keyHex := os.Getenv("AMDB_ENCRYPTION_KEY"); keyHex != "" {
		cfg.EncryptionKey = []byte(keyHex)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./amdb-data"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "file"
	}
	if cfg.StoreBackend != "file" && cfg.StoreBackend != "dynamodb" {
		return nil, fmt.Errorf("amdb: AMDB_STORE_BACKEND must be \"file\" or \"dynamodb\", got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "dynamodb" && cfg.DynamoDBTable == "" {
		return nil, fmt.Errorf("amdb: AMDB_DYNAMODB_TABLE is required when AMDB_STORE_BACKEND=dynamodb")
	}
	if cfg.CachePolicy == "" {
		cfg.CachePolicy = cache.LRU
	}

	return cfg, nil
}

func parseBooleanEnv(envVar string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(envVar)))
	truthyValues := []string{"true", "yes", "t", "y", "1"}
	return slices.Contains(truthyValues, value)
}

func parseIntEnv(envVar string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(envVar))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"encoding/hex"
	"fmt"

	"github.com/akamensky/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// attestor signs checkpoint roots with a secp256k1 key, letting external
// parties verify a published root really came from this engine instance —
// the purpose statement's "external parties can verify ... cheaply" taken
// one step further than the original Python implementation ever did. This
// is additive: it never participates in §3 invariant 1.
type attestor struct {
	key *secp256k1.PrivateKey
}

// newAttestor parses a hex-encoded secp256k1 private key. An empty hex
// string disables attestation (returns nil, nil).
func newAttestor(hexKey string) (*attestor, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := parsePrivateKeyHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("amdb: parsing signing key: %w", err)
	}
	return &attestor{key: key}, nil
}

// GenerateSigningKey returns a fresh hex-encoded secp256k1 private key,
// suitable for Config.SigningKey.
func GenerateSigningKey() (string, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", fmt.Errorf("amdb: generating signing key: %w", err)
	}
	return fmt.Sprintf("%x", key.Serialize()), nil
}

func parsePrivateKeyHex(hexKey string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signing key must be 32 bytes, got %d", len(raw))
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

// sign produces a DER-encoded ECDSA signature over root.
func (a *attestor) sign(root [32]byte) []byte {
	if a == nil {
		return nil
	}
	sig := ecdsa.Sign(a.key, root[:])
	return sig.Serialize()
}

// base58Root renders root in base58, the idiom blockchain tooling uses to
// show hashes and addresses to humans instead of raw hex.
func base58Root(root [32]byte) string {
	return base58.Encode(root[:])
}

// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package crypt implements the optional AES-256-CBC encryption helper: §4.5
// of the spec, grounded in stdlib crypto/aes and crypto/cipher since no
// third-party AES implementation appears anywhere in the example pack.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/coretrusts/amdb/internal/amdberrors"
)

const keySize = 32 // AES-256

// Cipher encrypts and decrypts byte slices with AES-256-CBC, a random
// 16-byte IV prepended to each ciphertext, and PKCS#7 padding. It is
// optional: callers pass values through it explicitly; nothing in amdb
// encrypts at rest by policy.
type Cipher struct {
	key []byte
}

// New constructs a Cipher from a 32-byte key. An empty key disables
// encryption: Encrypt and Decrypt both return amdberrors.ErrInvalidArgument
// rather than silently falling back to an insecure scheme, per §9 DESIGN
// NOTES ("Encryption scope").
func New(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return &Cipher{}, nil
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", amdberrors.ErrInvalidArgument, keySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// Encrypt pads plaintext with PKCS#7, generates a random IV, and returns
// iv || ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if len(c.key) == 0 {
		return nil, fmt.Errorf("%w: no encryption key configured", amdberrors.ErrInvalidArgument)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("amdb: constructing AES cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("amdb: generating IV: %w", err)
	}

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decrypt splits the leading IV from ciphertext, decrypts, and strips the
// PKCS#7 padding.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(c.key) == 0 {
		return nil, fmt.Errorf("%w: no encryption key configured", amdberrors.ErrInvalidArgument)
	}
	if len(ciphertext) < aes.BlockSize || (len(ciphertext)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a valid AES-CBC payload", amdberrors.ErrInvalidArgument)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("amdb: constructing AES cipher: %w", err)
	}

	iv := ciphertext[:aes.BlockSize]
	body := ciphertext[aes.BlockSize:]

	out := make([]byte, len(body))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(out, body)

	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext after decryption", amdberrors.ErrInvalidArgument)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("%w: invalid PKCS#7 padding", amdberrors.ErrInvalidArgument)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid PKCS#7 padding", amdberrors.ErrInvalidArgument)
		}
	}
	return data[:len(data)-padLen], nil
}

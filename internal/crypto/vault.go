// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package crypto provides password-based key derivation, sealed secret
// envelopes and in-memory secret handling for the local key store.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/aplane-ton/custody/internal/errors"
)

// KDFParams are the Argon2id parameters. They are persisted next to every
// salt so a store created with one set of parameters keeps opening after the
// defaults change.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"` // KiB
	Threads uint8  `json:"threads"`
}

// DefaultKDF is used for new salts (OWASP recommended Argon2id settings).
var DefaultKDF = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

const (
	keyLen  = 32 // AES-256
	saltLen = 32

	// checkPlaintext is the known value sealed in Metadata.Check
	checkPlaintext = "CUSTODY_OK"

	envelopeMasterKey = 1
	envelopePassword  = 2
)

// DeriveKey derives a 32-byte key from password and salt.
// Caller is responsible for zeroing the returned key when done.
func DeriveKey(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, keyLen)
}

// Envelope is a sealed secret. Version 1 envelopes are sealed with the
// store master key; version 2 envelopes embed their own salt and open with a
// password alone.
type Envelope struct {
	Version    int        `json:"v"`
	KDF        *KDFParams `json:"kdf,omitempty"`
	Salt       string     `json:"salt,omitempty"`
	Nonce      string     `json:"nonce"`
	Ciphertext string     `json:"ciphertext"`
}

// Metadata holds store-wide encryption metadata. The Check field proves a
// password without decrypting any key.
type Metadata struct {
	Version int       `json:"version"`
	KDF     KDFParams `json:"kdf"`
	Salt    string    `json:"salt"`
	Check   string    `json:"check"`
	Created string    `json:"created"`
}

// NewMetadata creates metadata for a new store and returns the derived
// master key.
func NewMetadata(password []byte) (*Metadata, []byte, error) {
	salt, err := randomBytes(saltLen)
	if err != nil {
		return nil, nil, err
	}

	params := DefaultKDF
	masterKey := DeriveKey(password, salt, params)

	check, err := seal([]byte(checkPlaintext), masterKey)
	if err != nil {
		ZeroBytes(masterKey)
		return nil, nil, fmt.Errorf("failed to create check value: %w", err)
	}

	meta := &Metadata{
		Version: 1,
		KDF:     params,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Check:   base64.StdEncoding.EncodeToString(check),
		Created: time.Now().UTC().Format(time.RFC3339),
	}
	return meta, masterKey, nil
}

// Unlock verifies the password and returns the master key if valid.
// A wrong password yields errors.ErrWrongPassword.
func (m *Metadata) Unlock(password []byte) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(m.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master salt: %w", err)
	}
	check, err := base64.StdEncoding.DecodeString(m.Check)
	if err != nil {
		return nil, fmt.Errorf("failed to decode check value: %w", err)
	}

	masterKey := DeriveKey(password, salt, m.KDF)
	plaintext, err := open(check, masterKey)
	if err != nil || subtle.ConstantTimeCompare(plaintext, []byte(checkPlaintext)) != 1 {
		ZeroBytes(masterKey)
		return nil, errors.ErrWrongPassword
	}
	return masterKey, nil
}

// Verify reports whether password unlocks the metadata.
func (m *Metadata) Verify(password []byte) bool {
	key, err := m.Unlock(password)
	if err != nil {
		return false
	}
	ZeroBytes(key)
	return true
}

// SealWithKey seals plaintext with a pre-derived master key.
func SealWithKey(plaintext, masterKey []byte) (*Envelope, error) {
	sealed, err := seal(plaintext, masterKey)
	if err != nil {
		return nil, err
	}
	return newEnvelope(envelopeMasterKey, nil, nil, sealed), nil
}

// OpenWithKey opens a version 1 envelope.
func OpenWithKey(env *Envelope, masterKey []byte) ([]byte, error) {
	if env.Version != envelopeMasterKey {
		return nil, fmt.Errorf("envelope version %d cannot be opened with a master key", env.Version)
	}
	sealed, err := env.sealed()
	if err != nil {
		return nil, err
	}
	plaintext, err := open(sealed, masterKey)
	if err != nil {
		return nil, errors.ErrWrongPassword
	}
	return plaintext, nil
}

// SealWithPassword seals plaintext under a key derived from password and a
// fresh salt embedded in the envelope.
func SealWithPassword(plaintext, password []byte) (*Envelope, error) {
	salt, err := randomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	params := DefaultKDF
	key := DeriveKey(password, salt, params)
	defer ZeroBytes(key)

	sealed, err := seal(plaintext, key)
	if err != nil {
		return nil, err
	}
	return newEnvelope(envelopePassword, &params, salt, sealed), nil
}

// OpenWithPassword opens a version 2 envelope.
func OpenWithPassword(env *Envelope, password []byte) ([]byte, error) {
	if env.Version != envelopePassword || env.KDF == nil {
		return nil, fmt.Errorf("envelope version %d cannot be opened with a password", env.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := env.sealed()
	if err != nil {
		return nil, err
	}

	key := DeriveKey(password, salt, *env.KDF)
	defer ZeroBytes(key)

	plaintext, err := open(sealed, key)
	if err != nil {
		return nil, errors.ErrWrongPassword
	}
	return plaintext, nil
}

func newEnvelope(version int, params *KDFParams, salt, sealed []byte) *Envelope {
	env := &Envelope{
		Version:    version,
		KDF:        params,
		Nonce:      base64.StdEncoding.EncodeToString(sealed[:nonceSize]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[nonceSize:]),
	}
	if salt != nil {
		env.Salt = base64.StdEncoding.EncodeToString(salt)
	}
	return env
}

func (env *Envelope) sealed() ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

// nonceSize is the standard AES-GCM nonce length.
const nonceSize = 12

// seal returns nonce || ciphertext || tag.
func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("sealed data too short")
	}
	return gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

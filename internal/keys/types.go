// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package keys decides which local keys may sign for an account.
//
// The package is a pure projection over the account's custodian list and
// the local key store: it never performs I/O and never fails. An empty
// result means "no local key can sign", which callers must tell apart from
// an authorization failure.
package keys

import (
	"encoding/hex"
	"strings"

	"filippo.io/edwards25519"

	"github.com/aplane-ton/custody/internal/errors"
)

// PublicKeySize is the length of an ed25519 public key.
const PublicKeySize = 32

// Kind identifies where the private half of a key lives.
type Kind string

const (
	KindSoftwareMaster    Kind = "software-master"    // derived from the wallet master secret
	KindSoftwareEncrypted Kind = "software-encrypted" // individually sealed with a password
	KindHardware          Kind = "hardware"           // held by an external device
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSoftwareMaster, KindSoftwareEncrypted, KindHardware:
		return true
	default:
		return false
	}
}

// IsSoftware reports whether signing needs a password rather than a device.
func (k Kind) IsSoftware() bool {
	return k == KindSoftwareMaster || k == KindSoftwareEncrypted
}

// KeyDescriptor describes one locally available key.
type KeyDescriptor struct {
	PublicKey string `json:"public_key"`          // lower-case hex
	Kind      Kind   `json:"kind"`                //
	DeviceID  string `json:"device_id,omitempty"` // hardware only
	Seq       uint64 `json:"seq"`                 // local addition order
}

// Account is a wallet account as far as signing is concerned.
type Account struct {
	Address      string   `json:"address" yaml:"address"`
	PublicKey    string   `json:"public_key" yaml:"public_key"`
	Custodians   []string `json:"custodians,omitempty" yaml:"custodians"`
	ContractType string   `json:"contract_type" yaml:"contract_type"`
}

// IsMultisig reports whether the account has an explicit custodian list.
func (a Account) IsMultisig() bool {
	return len(a.Custodians) > 0
}

// CustodianSet returns the normalized custodian keys in list order, each
// key once. A single-key account has its own public key as sole custodian.
// Malformed entries are skipped.
func (a Account) CustodianSet() []string {
	list := a.Custodians
	if len(list) == 0 && a.PublicKey != "" {
		list = []string{a.PublicKey}
	}

	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, raw := range list {
		pub, ok := Canonical(raw)
		if !ok {
			continue
		}
		if _, dup := seen[pub]; dup {
			continue
		}
		seen[pub] = struct{}{}
		out = append(out, pub)
	}
	return out
}

// NormalizePublicKey returns the canonical lower-case hex form of an
// ed25519 public key. Keys that are not valid curve points are rejected.
func NormalizePublicKey(s string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return "", errors.ErrInvalidKey.Newf("public key %q is not hex", s)
	}
	if len(raw) != PublicKeySize {
		return "", errors.ErrInvalidKey.Newf("public key has %d bytes, want %d", len(raw), PublicKeySize)
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return "", errors.Wrap(errors.ErrInvalidKey, "public key is not on the ed25519 curve")
	}
	return hex.EncodeToString(raw), nil
}

// Canonical is the lenient form of NormalizePublicKey used by projections
// that must not fail. It skips the curve check.
func Canonical(s string) (string, bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != PublicKeySize {
		return "", false
	}
	return hex.EncodeToString(raw), true
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package signing turns a selected key into signatures.
//
// Signer is a closed variant with one implementation per key location.
// Backend.Sign switches over it exhaustively, so a new key kind cannot be
// added without teaching the backend how to sign with it.
package signing

import (
	"context"
	"fmt"

	"github.com/aplane-ton/custody/internal/keys"
)

// Signer is one of Software, Encrypted or Hardware.
type Signer interface {
	// PublicKey returns the hex public key that verifies the signatures.
	PublicKey() string
	isSigner()
}

// Software signs with a seed sealed under the wallet master key.
type Software struct {
	Key keys.KeyDescriptor
}

// Encrypted signs with an individually password-sealed seed.
type Encrypted struct {
	Key keys.KeyDescriptor
}

// Hardware signs on the device named by DeviceID.
type Hardware struct {
	Key      keys.KeyDescriptor
	DeviceID string
}

func (s Software) PublicKey() string  { return s.Key.PublicKey }
func (s Encrypted) PublicKey() string { return s.Key.PublicKey }
func (s Hardware) PublicKey() string  { return s.Key.PublicKey }

func (Software) isSigner()  {}
func (Encrypted) isSigner() {}
func (Hardware) isSigner()  {}

// ForKey returns the signer variant for desc.
func ForKey(desc keys.KeyDescriptor) (Signer, error) {
	switch desc.Kind {
	case keys.KindSoftwareMaster:
		return Software{Key: desc}, nil
	case keys.KindSoftwareEncrypted:
		return Encrypted{Key: desc}, nil
	case keys.KindHardware:
		return Hardware{Key: desc, DeviceID: desc.DeviceID}, nil
	default:
		return nil, fmt.Errorf("unknown key kind %q", desc.Kind)
	}
}

// NeedsPassword reports whether s is unlocked by a password rather than a
// device confirmation.
func NeedsPassword(s Signer) bool {
	switch s.(type) {
	case Software, Encrypted:
		return true
	default:
		return false
	}
}

// PayloadSigner signs arbitrary bytes with one fixed key.
type PayloadSigner interface {
	PublicKey() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package signing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/hardware"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/util"
)

// SeedSource opens the seed of a software key. keystore.Store implements it.
type SeedSource interface {
	Seed(desc keys.KeyDescriptor, password *crypto.Secret) ([]byte, error)
}

// Backend signs with keys from a seed source and a device registry.
type Backend struct {
	seeds   SeedSource
	devices *hardware.Registry
	log     *slog.Logger
}

// NewBackend returns a backend. devices may be nil when no hardware is used.
func NewBackend(seeds SeedSource, devices *hardware.Registry, log *slog.Logger) *Backend {
	if devices == nil {
		devices = hardware.NewRegistry()
	}
	return &Backend{seeds: seeds, devices: devices, log: util.LoggerOr(log)}
}

// Devices returns the device registry.
func (b *Backend) Devices() *hardware.Registry {
	return b.devices
}

// Sign signs payload with s. password is ignored for hardware signers.
func (b *Backend) Sign(ctx context.Context, s Signer, password *crypto.Secret, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s := s.(type) {
	case Software:
		return b.signSoftware(s.Key, password, payload)
	case Encrypted:
		return b.signSoftware(s.Key, password, payload)
	case Hardware:
		return b.signHardware(ctx, s, payload)
	default:
		// Unreachable: Signer is closed over the three variants.
		return nil, errors.ErrSigning.Newf("unsupported signer %T", s)
	}
}

func (b *Backend) signSoftware(desc keys.KeyDescriptor, password *crypto.Secret, payload []byte) ([]byte, error) {
	if password.Empty() {
		return nil, errors.ErrWrongPassword
	}

	seed, err := b.seeds.Seed(desc, password)
	if err != nil {
		if errors.Root(err) != nil {
			return nil, err
		}
		return nil, errors.ErrSigning.Newf("open key %s: %v", desc.PublicKey, err)
	}
	defer crypto.ZeroBytes(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	defer crypto.ZeroBytes(priv)

	want, err := hex.DecodeString(desc.PublicKey)
	if err != nil || !bytes.Equal(priv.Public().(ed25519.PublicKey), want) {
		return nil, errors.ErrSigning.Newf("stored seed does not match key %s", desc.PublicKey)
	}

	b.log.Debug("signed with software key", "public_key", desc.PublicKey, "kind", desc.Kind)
	return ed25519.Sign(priv, payload), nil
}

func (b *Backend) signHardware(ctx context.Context, s Hardware, payload []byte) ([]byte, error) {
	dev, pub, err := b.devices.Ready(ctx, s.DeviceID, s.Key.PublicKey)
	if err != nil {
		return nil, err
	}

	sig, err := dev.Sign(ctx, pub, payload)
	if err != nil {
		if errors.Root(err) != nil {
			return nil, err
		}
		return nil, errors.ErrSigning.Newf("device %q: %v", s.DeviceID, err)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return nil, errors.ErrSigning.Newf("device %q returned an invalid signature", s.DeviceID)
	}

	b.log.Debug("signed on hardware device", "public_key", s.Key.PublicKey, "device", s.DeviceID)
	return sig, nil
}

// Bind fixes signer and password into a PayloadSigner. The password is
// used, not copied; the caller keeps ownership and wipes it.
func (b *Backend) Bind(s Signer, password *crypto.Secret) PayloadSigner {
	return &bound{backend: b, signer: s, password: password}
}

type bound struct {
	backend  *Backend
	signer   Signer
	password *crypto.Secret
}

func (p *bound) PublicKey() string {
	return p.signer.PublicKey()
}

func (p *bound) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	return p.backend.Sign(ctx, p.signer, p.password, payload)
}

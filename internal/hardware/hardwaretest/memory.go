// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package hardwaretest provides an in-process hardware.Device for tests.
package hardwaretest

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"sync"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/hardware"
)

var _ hardware.Device = (*Memory)(nil)

// Memory is an in-process device backed by ed25519 seeds. SetConnected and
// SetDeclined toggle its behaviour.
type Memory struct {
	id string

	mu        sync.Mutex
	keys      map[string]ed25519.PrivateKey
	connected bool
	declined  bool
	signs     int
}

// NewMemory returns a connected in-memory device.
func NewMemory(id string) *Memory {
	return &Memory{id: id, keys: make(map[string]ed25519.PrivateKey), connected: true}
}

// AddSeed loads a key and returns its public half.
func (m *Memory) AddSeed(seed []byte) ed25519.PublicKey {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	m.mu.Lock()
	m.keys[hex.EncodeToString(pub)] = priv
	m.mu.Unlock()
	return pub
}

// SetConnected simulates plugging or unplugging the device.
func (m *Memory) SetConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// SetDeclined makes the next signatures fail as if the user said no.
func (m *Memory) SetDeclined(v bool) {
	m.mu.Lock()
	m.declined = v
	m.mu.Unlock()
}

// Signs returns how many signatures the device produced.
func (m *Memory) Signs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signs
}

func (m *Memory) ID() string { return m.id }

func (m *Memory) CheckConnected(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, nil
}

func (m *Memory) HasKey(_ context.Context, publicKey []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[hex.EncodeToString(publicKey)]
	return ok, nil
}

func (m *Memory) Sign(ctx context.Context, publicKey, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, errors.ErrHardwareNotConnected.Newf("device %q", m.id)
	}
	if m.declined {
		return nil, errors.ErrUserDeclined.Newf("confirmation rejected on device %q", m.id)
	}
	priv, ok := m.keys[hex.EncodeToString(publicKey)]
	if !ok {
		return nil, errors.ErrHardwareKeyNotFound.Newf("device %q", m.id)
	}
	m.signs++
	return ed25519.Sign(priv, payload), nil
}

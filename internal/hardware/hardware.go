// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package hardware abstracts external signing devices.
//
// A Device holds private keys that never leave it. Devices register under
// their device id; hardware key descriptors name the id they live on.
package hardware

import (
	"context"
	"encoding/hex"
	"maps"
	"slices"
	"sync"

	"github.com/aplane-ton/custody/internal/errors"
)

// Device is an external signer.
type Device interface {
	// ID returns the device id recorded in hardware key descriptors.
	ID() string

	// CheckConnected reports whether the device is reachable right now.
	CheckConnected(ctx context.Context) (bool, error)

	// HasKey reports whether the device holds the private half of publicKey.
	HasKey(ctx context.Context, publicKey []byte) (bool, error)

	// Sign signs payload with the key for publicKey. The device may ask its
	// user to confirm; ctx bounds the wait.
	Sign(ctx context.Context, publicKey, payload []byte) ([]byte, error)
}

// Registry maps device ids to connected devices. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Add registers d. It reports false if a device with the same id exists;
// the existing device is kept.
func (r *Registry) Add(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[d.ID()]; exists {
		return false
	}
	r.devices[d.ID()] = d
	return true
}

// Remove forgets the device with id. Removing a missing id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// IDs returns the registered device ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.devices))
}

// Get returns the device with id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Ready returns the device for id after checking that it is connected and
// holds publicKey (hex). Failures map to ErrHardwareNotConnected and
// ErrHardwareKeyNotFound.
func (r *Registry) Ready(ctx context.Context, id, publicKey string) (Device, []byte, error) {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, nil, errors.ErrInvalidKey.Newf("public key %q is not hex", publicKey)
	}

	d, ok := r.Get(id)
	if !ok {
		return nil, nil, errors.ErrHardwareNotConnected.Newf("device %q", id)
	}

	connected, err := d.CheckConnected(ctx)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.ErrHardwareNotConnected, "device %q: %v", id, err)
	}
	if !connected {
		return nil, nil, errors.ErrHardwareNotConnected.Newf("device %q", id)
	}

	has, err := d.HasKey(ctx, pub)
	if err != nil {
		return nil, nil, errors.Wrapf(errors.ErrHardwareKeyNotFound, "device %q: %v", id, err)
	}
	if !has {
		return nil, nil, errors.ErrHardwareKeyNotFound.Newf("key %s on device %q", publicKey, id)
	}
	return d, pub, nil
}

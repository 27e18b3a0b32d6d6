// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package crypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// ZeroBytes securely overwrites a byte slice with zeros.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// Secret holds a password or key in memory until Wipe is called.
// It never prints its content.
type Secret struct {
	mu   sync.RWMutex
	data []byte
}

// NewSecret copies b into a new Secret; the caller may zero b afterwards.
func NewSecret(b []byte) *Secret {
	if b == nil {
		return &Secret{}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &Secret{data: data}
}

// NewSecretString is NewSecret for string input (UI text fields).
func NewSecretString(s string) *Secret {
	return &Secret{data: []byte(s)}
}

// Use gives fn scoped access to the bytes under a read lock.
// fn must not retain the slice.
func (s *Secret) Use(fn func([]byte) error) error {
	if s == nil {
		return fn(nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// Wipe zeros the content. Wiping twice is harmless.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ZeroBytes(s.data)
	s.data = nil
}

// Empty reports whether the secret holds no bytes.
func (s *Secret) Empty() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data) == 0
}

// String redacts the content.
func (s *Secret) String() string {
	return "[redacted]"
}

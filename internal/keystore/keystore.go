// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package keystore provides the local key store.
//
// The store is a directory holding a .keystore metadata file (password
// check value) and keys.json, the ordered list of key descriptors with
// their sealed secrets. Software-master seeds are sealed with the store
// master key; software-encrypted seeds carry their own password envelope;
// hardware entries hold no secret, only the device id.
//
// Store implements keys.LocalKeys and the password check used before
// software signing. Implementations must be safe for concurrent use.
package keystore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/fsutil"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/util"
)

const (
	metaFile  = ".keystore"
	keysFile  = "keys.json"
	formatVer = 1
)

// Common keystore errors
var (
	// ErrKeyNotFound indicates the requested key does not exist
	ErrKeyNotFound = stderrors.New("key not found")

	// ErrKeyExists indicates the same key of the same kind is already stored
	ErrKeyExists = stderrors.New("key already exists")

	// ErrNotInitialized indicates the directory holds no keystore
	ErrNotInitialized = stderrors.New("keystore not initialized")

	// ErrNoSecret indicates a hardware key, whose secret never leaves the device
	ErrNoSecret = stderrors.New("key has no local secret")
)

type entry struct {
	keys.KeyDescriptor
	AddedAt string          `json:"added_at"`
	Secret  *crypto.Envelope `json:"secret,omitempty"`
}

type keysDocument struct {
	Version int     `json:"version"`
	NextSeq uint64  `json:"next_seq"`
	Keys    []entry `json:"keys"`
}

// Store is a file-backed key store.
type Store struct {
	dir string
	log *slog.Logger

	mu      sync.RWMutex
	meta    *crypto.Metadata
	entries []entry
	nextSeq uint64
}

// Create initializes a new store in dir protected by password.
func Create(dir string, password []byte) (*Store, error) {
	if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
		return nil, fmt.Errorf("keystore already exists in %s", dir)
	}
	if err := fsutil.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	meta, masterKey, err := crypto.NewMetadata(password)
	if err != nil {
		return nil, err
	}
	crypto.ZeroBytes(masterKey)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keystore metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, metaFile), data); err != nil {
		return nil, fmt.Errorf("failed to write keystore metadata: %w", err)
	}

	s := &Store{dir: dir, log: util.Logger, meta: meta, nextSeq: 1}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads an existing store.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, log: util.Logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Reload re-reads the store from disk.
func (s *Store) Reload() error {
	metaData, err := os.ReadFile(filepath.Join(s.dir, metaFile))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w (missing %s in %s)", ErrNotInitialized, metaFile, s.dir)
	}
	if err != nil {
		return fmt.Errorf("failed to read keystore metadata: %w", err)
	}
	var meta crypto.Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("failed to parse keystore metadata: %w", err)
	}

	doc := keysDocument{Version: formatVer, NextSeq: 1}
	keysData, err := os.ReadFile(filepath.Join(s.dir, keysFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", keysFile, err)
	default:
		if err := json.Unmarshal(keysData, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", keysFile, err)
		}
	}
	if doc.Version != formatVer {
		return fmt.Errorf("unsupported %s version %d", keysFile, doc.Version)
	}

	s.mu.Lock()
	s.meta = &meta
	s.entries = doc.Keys
	s.nextSeq = doc.NextSeq
	s.mu.Unlock()

	s.log.Debug("keystore loaded", "dir", s.dir, "keys", len(doc.Keys))
	return nil
}

// Keys returns descriptors of all stored keys in addition order.
func (s *Store) Keys() []keys.KeyDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]keys.KeyDescriptor, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.KeyDescriptor
	}
	return out
}

// CheckPassword reports whether password unlocks the store.
func (s *Store) CheckPassword(_ context.Context, password *crypto.Secret) (bool, error) {
	s.mu.RLock()
	meta := s.meta
	s.mu.RUnlock()
	if meta == nil {
		return false, ErrNotInitialized
	}

	ok := false
	_ = password.Use(func(p []byte) error {
		ok = meta.Verify(p)
		return nil
	})
	return ok, nil
}

// AddSoftwareMaster stores a seed sealed with the store master key.
func (s *Store) AddSoftwareMaster(seed []byte, password *crypto.Secret) (keys.KeyDescriptor, error) {
	pub, err := publicKeyOf(seed)
	if err != nil {
		return keys.KeyDescriptor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var env *crypto.Envelope
	err = password.Use(func(p []byte) error {
		masterKey, err := s.meta.Unlock(p)
		if err != nil {
			return err
		}
		defer crypto.ZeroBytes(masterKey)
		env, err = crypto.SealWithKey(seed, masterKey)
		return err
	})
	if err != nil {
		return keys.KeyDescriptor{}, err
	}
	return s.addLocked(keys.KeyDescriptor{PublicKey: pub, Kind: keys.KindSoftwareMaster}, env)
}

// AddEncrypted stores a seed in its own password envelope.
func (s *Store) AddEncrypted(seed []byte, password *crypto.Secret) (keys.KeyDescriptor, error) {
	pub, err := publicKeyOf(seed)
	if err != nil {
		return keys.KeyDescriptor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var env *crypto.Envelope
	err = password.Use(func(p []byte) error {
		if !s.meta.Verify(p) {
			return errors.ErrWrongPassword
		}
		env, err = crypto.SealWithPassword(seed, p)
		return err
	})
	if err != nil {
		return keys.KeyDescriptor{}, err
	}
	return s.addLocked(keys.KeyDescriptor{PublicKey: pub, Kind: keys.KindSoftwareEncrypted}, env)
}

// AddHardware records a key held by deviceID.
func (s *Store) AddHardware(publicKey, deviceID string) (keys.KeyDescriptor, error) {
	pub, err := keys.NormalizePublicKey(publicKey)
	if err != nil {
		return keys.KeyDescriptor{}, err
	}
	if deviceID == "" {
		return keys.KeyDescriptor{}, fmt.Errorf("hardware key needs a device id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(keys.KeyDescriptor{PublicKey: pub, Kind: keys.KindHardware, DeviceID: deviceID}, nil)
}

// Remove deletes the key with the given public key and kind.
func (s *Store) Remove(publicKey string, kind keys.Kind) error {
	pub, err := keys.NormalizePublicKey(publicKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.PublicKey == pub && e.Kind == kind {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrKeyNotFound
}

// Seed opens the secret of a software key. The caller must zero the result.
func (s *Store) Seed(desc keys.KeyDescriptor, password *crypto.Secret) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.findLocked(desc.PublicKey, desc.Kind)
	if !ok {
		return nil, ErrKeyNotFound
	}
	if e.Secret == nil {
		return nil, ErrNoSecret
	}

	var seed []byte
	err := password.Use(func(p []byte) error {
		switch desc.Kind {
		case keys.KindSoftwareMaster:
			masterKey, err := s.meta.Unlock(p)
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(masterKey)
			seed, err = crypto.OpenWithKey(e.Secret, masterKey)
			return err
		case keys.KindSoftwareEncrypted:
			var err error
			seed, err = crypto.OpenWithPassword(e.Secret, p)
			return err
		default:
			return ErrNoSecret
		}
	})
	return seed, err
}

func (s *Store) findLocked(pub string, kind keys.Kind) (entry, bool) {
	norm, err := keys.NormalizePublicKey(pub)
	if err != nil {
		return entry{}, false
	}
	for _, e := range s.entries {
		if e.PublicKey == norm && e.Kind == kind {
			return e, true
		}
	}
	return entry{}, false
}

func (s *Store) addLocked(desc keys.KeyDescriptor, env *crypto.Envelope) (keys.KeyDescriptor, error) {
	if _, exists := s.findLocked(desc.PublicKey, desc.Kind); exists {
		return keys.KeyDescriptor{}, ErrKeyExists
	}
	desc.Seq = s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, entry{
		KeyDescriptor: desc,
		AddedAt:       time.Now().UTC().Format(time.RFC3339),
		Secret:        env,
	})
	if err := s.saveLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return keys.KeyDescriptor{}, err
	}
	s.log.Info("key added", "public_key", desc.PublicKey, "kind", desc.Kind, "seq", desc.Seq)
	return desc, nil
}

func (s *Store) saveLocked() error {
	doc := keysDocument{Version: formatVer, NextSeq: s.nextSeq, Keys: s.entries}
	if doc.Keys == nil {
		doc.Keys = []entry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", keysFile, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(s.dir, keysFile), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", keysFile, err)
	}
	return nil
}

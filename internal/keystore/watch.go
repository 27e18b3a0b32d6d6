// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package keystore

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aplane-ton/custody/internal/keys"
)

// WatchDebounce is the quiet period after the last change before a reload.
var WatchDebounce = 500 * time.Millisecond

// Watch reloads the store when keys.json or the metadata file changes on
// disk and calls onChange with the new key list. It returns once the
// watcher is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func([]keys.KeyDescriptor)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Atomic writes replace the file, so watch the directory.
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch keystore directory: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name != keysFile && name != metaFile {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, func() {
					if ctx.Err() != nil {
						return
					}
					if err := s.Reload(); err != nil {
						s.log.Warn("keystore reload failed", "error", err)
						return
					}
					if onChange != nil {
						onChange(s.Keys())
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("keystore watcher error", "error", err)
			}
		}
	}()

	return nil
}

// publicKeyOf derives the hex public key of an ed25519 seed.
func publicKeyOf(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

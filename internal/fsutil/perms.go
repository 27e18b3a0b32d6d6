// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package fsutil provides filesystem helpers for the key store.
// Store files are owner-only (0600 files, 0700 dirs) and are replaced
// atomically so a watcher never observes a half-written file.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoreDirPerm is the permission mode for store directories.
const StoreDirPerm os.FileMode = 0700

// StoreFilePerm is the permission mode for store files.
const StoreFilePerm os.FileMode = 0600

// MkdirAll creates a directory and all parents with store permissions.
// Unlike os.MkdirAll, this explicitly sets permissions after creation to
// bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, StoreDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, StoreDirPerm)
}

// WriteFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(StoreFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package security applies process-level protections for code that holds
// decrypted seeds.
package security

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// DisableMemoryLockEnv skips LockMemory when set, for debugging.
const DisableMemoryLockEnv = "CUSTODY_DISABLE_MEMORY_LOCK"

// LockMemory locks current and future pages so seeds are never swapped out.
func LockMemory() error {
	if err := syscall.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall failed: %w (grant it with: sudo setcap cap_ipc_lock+ep %s)", err, os.Args[0])
	}
	return nil
}

// DisableCoreDumps prevents core dumps which could leak seeds.
func DisableCoreDumps() error {
	rlimit := syscall.Rlimit{Cur: 0, Max: 0}
	if err := syscall.Setrlimit(syscall.RLIMIT_CORE, &rlimit); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}

// Harden disables core dumps and tries to lock memory. Only the core dump
// failure is returned; a CLI run without CAP_IPC_LOCK keeps working with a
// warning.
func Harden(log *slog.Logger) error {
	if err := DisableCoreDumps(); err != nil {
		return err
	}
	if os.Getenv(DisableMemoryLockEnv) != "" {
		log.Debug("memory locking disabled", "env", DisableMemoryLockEnv)
		return nil
	}
	if err := LockMemory(); err != nil {
		log.Warn("memory not locked; seeds may reach swap", "error", err)
	}
	return nil
}

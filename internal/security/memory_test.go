// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package security

import (
	"io"
	"log/slog"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardenDisablesCoreDumps(t *testing.T) {
	t.Setenv(DisableMemoryLockEnv, "1")

	var before syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_CORE, &before))
	t.Cleanup(func() { _ = syscall.Setrlimit(syscall.RLIMIT_CORE, &before) })

	require.NoError(t, Harden(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var after syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_CORE, &after))
	assert.Zero(t, after.Cur)
}

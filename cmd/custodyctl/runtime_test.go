// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/keystore"
	"github.com/aplane-ton/custody/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	crypto.DefaultKDF = crypto.KDFParams{Time: 1, Memory: 1024, Threads: 1}
	os.Exit(m.Run())
}

const runtimeYAML = `max_messages: 2
approval_timeout: 90s
device:
  app_name: vault
contract_expirations:
  multisig_v1: 30m
  multisig_2_extended: 48h
finalized_cache_size: 7
subscriber_buffer: 3
`

func TestNewRuntimeUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(runtimeYAML), 0600))

	cfg, err := util.LoadConfig(dir)
	require.NoError(t, err)
	store, err := keystore.Create(cfg.KeystoreDir, []byte("pw"))
	require.NoError(t, err)

	rt, err := newRuntime(&cfg, store)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, rt.tracker.Expiration("multisig_v1"))
	assert.Equal(t, 48*time.Hour, rt.tracker.Expiration("multisig_2_extended"))
	assert.Equal(t, util.DefaultExpiration, rt.tracker.Expiration("multisig_2"))
	tc := rt.tracker.Config()
	assert.Equal(t, 7, tc.FinalizedCacheSize)
	assert.Equal(t, 3, tc.SubscriberBuffer)

	dev := rt.bridge.DeviceInfo()
	assert.Equal(t, "vault", dev.AppName)
	assert.Equal(t, "linux", dev.Platform)
	require.NotEmpty(t, dev.Features)
	assert.Equal(t, 2, dev.Features[0].MaxMessages)

	var buf bytes.Buffer
	printRuntime(&buf, &cfg, rt)
	out := buf.String()
	assert.Contains(t, out, "approval timeout:   1m30s")
	assert.Contains(t, out, "finalized cache:    7")
	assert.Contains(t, out, "multisig_v1:")
	assert.Contains(t, out, "30m0s")
}

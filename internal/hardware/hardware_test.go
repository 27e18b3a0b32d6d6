// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package hardware_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/hardware"
	"github.com/aplane-ton/custody/internal/hardware/hardwaretest"
)

func TestRegistryReady(t *testing.T) {
	ctx := context.Background()
	dev := hardwaretest.NewMemory("ledger-1")
	pub := dev.AddSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
	pubHex := hex.EncodeToString(pub)

	reg := hardware.NewRegistry()
	require.True(t, reg.Add(dev))
	assert.False(t, reg.Add(dev), "duplicate id")
	assert.Equal(t, []string{"ledger-1"}, reg.IDs())

	got, raw, err := reg.Ready(ctx, "ledger-1", pubHex)
	require.NoError(t, err)
	assert.Equal(t, dev, got)
	assert.Equal(t, []byte(pub), raw)

	_, _, err = reg.Ready(ctx, "ledger-1", "not-hex")
	assert.True(t, errors.ErrInvalidKey.Is(err))
	assert.Zero(t, dev.Signs())

	_, _, err = reg.Ready(ctx, "ledger-2", pubHex)
	assert.True(t, errors.ErrHardwareNotConnected.Is(err))

	other := hex.EncodeToString(bytes.Repeat([]byte{1}, 32))
	_, _, err = reg.Ready(ctx, "ledger-1", other)
	assert.True(t, errors.ErrHardwareKeyNotFound.Is(err))

	dev.SetConnected(false)
	_, _, err = reg.Ready(ctx, "ledger-1", pubHex)
	assert.True(t, errors.ErrHardwareNotConnected.Is(err))

	reg.Remove("ledger-1")
	assert.Empty(t, reg.IDs())
}

func TestRegistryConcurrent(t *testing.T) {
	reg := hardware.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("dev-%02d", i)
			reg.Add(hardwaretest.NewMemory(id))
			_, _ = reg.Get(id)
			_ = reg.IDs()
		}(i)
	}
	wg.Wait()

	ids := reg.IDs()
	require.Len(t, ids, 50)
	assert.Equal(t, "dev-00", ids[0])
	assert.Equal(t, "dev-49", ids[49])
}

func TestMemorySign(t *testing.T) {
	ctx := context.Background()
	dev := hardwaretest.NewMemory("d")
	pub := dev.AddSeed(bytes.Repeat([]byte{3}, ed25519.SeedSize))

	sig, err := dev.Sign(ctx, pub, []byte("msg"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte("msg"), sig))
	assert.Equal(t, 1, dev.Signs())

	dev.SetDeclined(true)
	_, err = dev.Sign(ctx, pub, []byte("msg"))
	assert.True(t, errors.ErrUserDeclined.Is(err))
	assert.Equal(t, 1, dev.Signs())
}

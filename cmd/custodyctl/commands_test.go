// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPub = "8a88e3dd7409f195fd52db2d3cba5d72ca6709bf1d94121bf3748801b40f6f5c"

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed("")
	require.NoError(t, err)
	assert.Len(t, seed, 32)

	seed, err = parseSeed(strings.Repeat("01", 32))
	require.NoError(t, err)
	assert.Equal(t, byte(1), seed[31])

	_, err = parseSeed("0102")
	assert.Error(t, err)
	_, err = parseSeed("zz")
	assert.Error(t, err)
}

func TestFindKey(t *testing.T) {
	list := []keys.KeyDescriptor{
		{PublicKey: testPub, Kind: keys.KindHardware, DeviceID: "ledger", Seq: 4},
		{PublicKey: testPub, Kind: keys.KindSoftwareEncrypted, Seq: 2},
	}

	d, err := findKey(list, strings.ToUpper(testPub))
	require.NoError(t, err)
	assert.Equal(t, keys.KindSoftwareEncrypted, d.Kind)

	_, err = findKey(list[:0], testPub)
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)

	_, err = findKey(list, "abcd")
	assert.Error(t, err)
}

func TestPrintKeys(t *testing.T) {
	var buf bytes.Buffer
	printKeys(&buf, nil)
	assert.Equal(t, "No keys.\n", buf.String())

	buf.Reset()
	printKeys(&buf, []keys.KeyDescriptor{{PublicKey: testPub, Kind: keys.KindHardware, DeviceID: "ledger", Seq: 1}})
	assert.Contains(t, buf.String(), "(device ledger)")
	assert.Contains(t, buf.String(), testPub)
}

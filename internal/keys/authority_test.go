// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aplane-ton/custody/internal/errors"
)

// testKey derives a deterministic public key from a one-byte seed.
func testKey(b byte) string {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = b
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

func TestGetSelectableKeys(t *testing.T) {
	a, b, c, d := testKey(1), testKey(2), testKey(3), testKey(4)
	account := Account{
		Address:      "0:" + strings.Repeat("ab", 32),
		Custodians:   []string{a, b, c},
		ContractType: "multisig_v1",
	}
	local := StaticKeys{
		{PublicKey: c, Kind: KindHardware, DeviceID: "ledger-1", Seq: 1},
		{PublicKey: d, Kind: KindSoftwareMaster, Seq: 2},
		{PublicKey: a, Kind: KindSoftwareEncrypted, Seq: 5},
		{PublicKey: strings.ToUpper(a), Kind: KindSoftwareMaster, Seq: 3},
	}
	authority := NewAuthority(local)

	cases := map[string]struct {
		exclude []string
		want    []KeyDescriptor
	}{
		"custodian order then addition order": {
			want: []KeyDescriptor{
				{PublicKey: a, Kind: KindSoftwareMaster, Seq: 3},
				{PublicKey: a, Kind: KindSoftwareEncrypted, Seq: 5},
				{PublicKey: c, Kind: KindHardware, DeviceID: "ledger-1", Seq: 1},
			},
		},
		"already confirmed keys are excluded": {
			exclude: []string{strings.ToUpper(a)},
			want: []KeyDescriptor{
				{PublicKey: c, Kind: KindHardware, DeviceID: "ledger-1", Seq: 1},
			},
		},
		"everything confirmed leaves nothing": {
			exclude: []string{a, c},
			want:    nil,
		},
		"garbage exclusions are ignored": {
			exclude: []string{"zz", ""},
			want: []KeyDescriptor{
				{PublicKey: a, Kind: KindSoftwareMaster, Seq: 3},
				{PublicKey: a, Kind: KindSoftwareEncrypted, Seq: 5},
				{PublicKey: c, Kind: KindHardware, DeviceID: "ledger-1", Seq: 1},
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := authority.GetSelectableKeys(account, tc.exclude...)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectableKeysAreSubsetOfCustodiansAndLocal(t *testing.T) {
	var custodians []string
	var local StaticKeys
	for i := byte(1); i <= 12; i++ {
		if i%2 == 0 {
			custodians = append(custodians, testKey(i))
		}
		if i%3 == 0 {
			local = append(local, KeyDescriptor{PublicKey: testKey(i), Kind: KindSoftwareMaster, Seq: uint64(i)})
		}
	}
	account := Account{Custodians: custodians}
	excluded := testKey(6)

	got := NewAuthority(local).GetSelectableKeys(account, excluded)

	localSet := map[string]bool{}
	for _, d := range local {
		localSet[d.PublicKey] = true
	}
	for _, d := range got {
		assert.True(t, IsCustodian(account, d.PublicKey), "%s is not a custodian", d.PublicKey)
		assert.True(t, localSet[d.PublicKey], "%s is not local", d.PublicKey)
		assert.NotEqual(t, excluded, d.PublicKey)
	}
	// 6 and 12 are both custodians and local; 6 is excluded.
	require.Len(t, got, 1)
	assert.Equal(t, testKey(12), got[0].PublicKey)
}

func TestSingleKeyAccount(t *testing.T) {
	own := testKey(9)
	account := Account{PublicKey: own}
	authority := NewAuthority(StaticKeys{{PublicKey: own, Kind: KindSoftwareMaster}})

	assert.False(t, account.IsMultisig())
	assert.True(t, authority.CanSign(account))
	assert.Equal(t, []string{own}, account.CustodianSet())
}

func TestNoLocalKeyIsEmptyNotError(t *testing.T) {
	account := Account{Custodians: []string{testKey(1), testKey(2)}}

	assert.Empty(t, NewAuthority(nil).GetSelectableKeys(account))
	assert.Empty(t, NewAuthority(StaticKeys{}).GetSelectableKeys(account))
	assert.False(t, NewAuthority(StaticKeys{{PublicKey: testKey(3)}}).CanSign(account))
}

func TestCustodianSetDeduplicates(t *testing.T) {
	a := testKey(1)
	account := Account{Custodians: []string{a, strings.ToUpper(a), "0x" + a, "not-hex", testKey(2)}}
	assert.Equal(t, []string{a, testKey(2)}, account.CustodianSet())
}

func TestFind(t *testing.T) {
	a := testKey(1)
	account := Account{Custodians: []string{a}}
	authority := NewAuthority(StaticKeys{
		{PublicKey: a, Kind: KindHardware, DeviceID: "d2", Seq: 2},
		{PublicKey: a, Kind: KindSoftwareMaster, Seq: 1},
	})

	d, ok := authority.Find(account, strings.ToUpper(a))
	require.True(t, ok)
	assert.Equal(t, KindSoftwareMaster, d.Kind)

	_, ok = authority.Find(account, testKey(2))
	assert.False(t, ok)
}

func TestNormalizePublicKey(t *testing.T) {
	valid := testKey(5)

	got, err := NormalizePublicKey("0x" + strings.ToUpper(valid))
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	for name, in := range map[string]string{
		"not hex":   "xyz",
		"too short": valid[:62],
		"off curve": "02" + strings.Repeat("00", 31),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizePublicKey(in)
			assert.True(t, errors.ErrInvalidKey.Is(err), "got %v", err)
		})
	}
}

func TestKind(t *testing.T) {
	assert.True(t, KindHardware.Valid())
	assert.False(t, Kind("plugin").Valid())
	assert.True(t, KindSoftwareEncrypted.IsSoftware())
	assert.False(t, KindHardware.IsSoftware())
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package proof

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/protocol"
)

type keySigner struct {
	priv  ed25519.PrivateKey
	calls int
	last  []byte
}

func newKeySigner(seedByte byte) *keySigner {
	return &keySigner{priv: ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seedByte}, ed25519.SeedSize))}
}

func (s *keySigner) PublicKey() string {
	return hex.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

func (s *keySigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	s.calls++
	s.last = append([]byte(nil), payload...)
	return ed25519.Sign(s.priv, payload), nil
}

// testAddress is workchain 0 with hash 00 01 .. 1f.
var testAddress = "0:000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func fixedClock() time.Time {
	return time.Unix(1700000000, 0)
}

func TestBuildOwnershipProofGolden(t *testing.T) {
	signer := newKeySigner(1)
	b := NewBuilder(WithClock(fixedClock))

	p, err := b.BuildOwnershipProof(context.Background(), testAddress, "https://example.com", "test", signer)
	require.NoError(t, err)

	assert.Equal(t, "8a88e3dd7409f195fd52db2d3cba5d72ca6709bf1d94121bf3748801b40f6f5c", signer.PublicKey())
	assert.Equal(t, int64(1700000000), p.Timestamp)
	assert.Equal(t, protocol.Domain{LengthBytes: 11, Value: "example.com"}, p.Domain)
	assert.Equal(t, "test", p.Payload)
	assert.Equal(t, "https://example.com", p.Origin)

	assert.Equal(t, "41fb0a0fbf61412fdb329bbc7c151ff76cf4218b7863670be0ef127fef991449", hex.EncodeToString(signer.last))
	assert.Equal(t,
		"J1j6vVyimk2jF26EmlPlnX6aSpXa+ejVeXE5p9KFQaGMbJXyDlZPErHms7rN9ncX1vYq21Vm7IgZQfAYSYTNDg==",
		p.Signature)

	require.NoError(t, Verify(p, testAddress, signer.PublicKey()))
}

func TestMessageLayout(t *testing.T) {
	addr, err := ParseAddress(testAddress)
	require.NoError(t, err)

	msg := Message(addr, "example.com", 1700000000, "test")
	assert.Equal(t,
		"746f6e2d70726f6f662d6974656d2d76322f"+ // ton-proof-item-v2/
			"00000000"+ // workchain
			"000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"+
			"0b000000"+ // domain length
			"6578616d706c652e636f6d"+
			"00f1536500000000"+ // timestamp
			"74657374",
		hex.EncodeToString(msg))

	assert.Equal(t,
		"ffff746f6e2d636f6e6e656374e4825e2f080ee6f7f78c0f48e78a62c68582aa04de3e702b08b3dbf2c0bcecdf",
		hex.EncodeToString(ToSign(msg)))
}

func TestMasterchainWorkchain(t *testing.T) {
	addr, err := ParseAddress(strings.Replace(testAddress, "0:", "-1:", 1))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), addr.Workchain)

	msg := Message(addr, "example.com", 1700000000, "test")
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, msg[len(itemPrefix):len(itemPrefix)+4])

	digest := SigningDigest(addr, "example.com", 1700000000, "test")
	assert.Equal(t, "ca701c4aaa82e4161469dd2daf0d780238f421c75b872c62d7096a0570a1e11d", hex.EncodeToString(digest[:]))
}

func TestDomainIncludesPort(t *testing.T) {
	signer := newKeySigner(2)
	p, err := NewBuilder(WithClock(fixedClock)).
		BuildOwnershipProof(context.Background(), testAddress, "http://localhost:8080/app", "", signer)
	require.NoError(t, err)
	assert.Equal(t, protocol.Domain{LengthBytes: 14, Value: "localhost:8080"}, p.Domain)
	require.NoError(t, Verify(p, testAddress, signer.PublicKey()))
}

func TestInvalidOriginNeverSigns(t *testing.T) {
	for _, origin := range []string{"", "example.com", "/path/only", "https://", "://bad", "mailto:someone"} {
		t.Run(origin, func(t *testing.T) {
			signer := newKeySigner(3)
			p, err := NewBuilder().BuildOwnershipProof(context.Background(), testAddress, origin, "x", signer)
			assert.Nil(t, p)
			assert.True(t, errors.ErrInvalidOrigin.Is(err), "got %v", err)
			assert.Zero(t, signer.calls)
		})
	}
}

func TestInvalidAddressNeverSigns(t *testing.T) {
	signer := newKeySigner(3)
	_, err := NewBuilder().BuildOwnershipProof(context.Background(), "0:zz", "https://example.com", "x", signer)
	assert.True(t, errors.ErrInvalidAddress.Is(err), "got %v", err)
	assert.Zero(t, signer.calls)
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := newKeySigner(4)
	p, err := NewBuilder(WithClock(fixedClock)).
		BuildOwnershipProof(context.Background(), testAddress, "https://example.com", "nonce", signer)
	require.NoError(t, err)

	tampered := *p
	tampered.Payload = "other"
	assert.Error(t, Verify(&tampered, testAddress, signer.PublicKey()))

	tampered = *p
	tampered.Domain = protocol.Domain{LengthBytes: 8, Value: "evil.com"}
	assert.Error(t, Verify(&tampered, testAddress, signer.PublicKey()))

	assert.Error(t, Verify(p, testAddress, newKeySigner(5).PublicKey()))
}

func TestWire(t *testing.T) {
	p := &SessionProof{Timestamp: 1, Domain: protocol.Domain{LengthBytes: 1, Value: "a"}, Signature: "c2ln", Payload: "p"}
	w := p.Wire()
	assert.Equal(t, p.Timestamp, w.Timestamp)
	assert.Equal(t, p.Domain, w.Domain)
	assert.Equal(t, p.Signature, w.Signature)
	assert.Equal(t, p.Payload, w.Payload)
}

func TestBuildSignData(t *testing.T) {
	signer := newKeySigner(6)
	b := NewBuilder(WithClock(fixedClock))
	ctx := context.Background()
	pub := signer.priv.Public().(ed25519.PublicKey)

	text := protocol.SignDataParams{Type: protocol.SignDataText, Text: "hello"}
	sd, err := b.BuildSignData(ctx, testAddress, "https://example.com", text, signer)
	require.NoError(t, err)
	assert.Equal(t, "example.com", sd.Domain)

	addr, _ := ParseAddress(testAddress)
	msg := SignDataMessage(addr, "example.com", 1700000000, "txt", []byte("hello"))
	assert.Equal(t, []byte{0xff, 0xff}, msg[:2])
	digest := sha256.Sum256(msg)
	assert.Equal(t, digest[:], signer.last)
	assert.True(t, ed25519.Verify(pub, signer.last, sd.Signature))

	res := sd.Result()
	raw, err := base64.StdEncoding.DecodeString(res.Signature)
	require.NoError(t, err)
	assert.Equal(t, sd.Signature, raw)

	bin := protocol.SignDataParams{Type: protocol.SignDataBinary, Bytes: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}
	_, err = b.BuildSignData(ctx, testAddress, "https://example.com", bin, signer)
	require.NoError(t, err)

	calls := signer.calls
	_, err = b.BuildSignData(ctx, testAddress, "https://example.com", protocol.SignDataParams{Type: protocol.SignDataCell}, signer)
	assert.True(t, errors.ErrMethodNotSupported.Is(err))

	_, err = b.BuildSignData(ctx, testAddress, "https://example.com", protocol.SignDataParams{Type: protocol.SignDataBinary, Bytes: "!!"}, signer)
	assert.True(t, errors.ErrInvalidRequest.Is(err))
	assert.Equal(t, calls, signer.calls)
}

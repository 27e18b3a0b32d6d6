// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package proof builds domain-bound ownership proofs (ton_proof) and
// signData signatures.
//
// The byte layout is a wire contract shared with every verifying backend:
//
//	message = "ton-proof-item-v2/" ‖ wc (int32 LE) ‖ hash (32)
//	          ‖ domainLen (uint32 LE) ‖ domain ‖ timestamp (uint64 LE) ‖ payload
//	toSign  = 0xFFFF ‖ "ton-connect" ‖ SHA-256(message)
//
// The signer receives SHA-256(toSign).
package proof

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"log/slog"
	"net/url"
	"time"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/signing"
	"github.com/aplane-ton/custody/internal/util"
)

const (
	itemPrefix    = "ton-proof-item-v2/"
	connectPrefix = "ton-connect"
)

// SessionProof is a signed statement that the holder of an account key
// authorised a session with Domain at Timestamp.
type SessionProof struct {
	Origin    string
	Timestamp int64
	Domain    protocol.Domain
	Signature string // base64
	Payload   string
}

// Wire returns the proof as sent in a ton_proof connect item.
func (p *SessionProof) Wire() protocol.TonProof {
	return protocol.TonProof{
		Timestamp: p.Timestamp,
		Domain:    p.Domain,
		Signature: p.Signature,
		Payload:   p.Payload,
	}
}

// Builder constructs proofs. The zero value is not usable; call NewBuilder.
type Builder struct {
	now func() time.Time
	log *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock replaces time.Now, mostly for pinned test vectors.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder returns a builder using the wall clock.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.log = util.LoggerOr(b.log)
	return b
}

// BuildOwnershipProof signs a ton_proof for address towards origin.
// Origin and address are validated before the signer is touched; on any
// error no proof is returned.
func (b *Builder) BuildOwnershipProof(ctx context.Context, address, origin, payload string, signer signing.PayloadSigner) (*SessionProof, error) {
	domain, err := DomainOf(origin)
	if err != nil {
		return nil, err
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	ts := b.now().Unix()
	digest := SigningDigest(addr, domain, ts, payload)

	sig, err := signer.Sign(ctx, digest[:])
	if err != nil {
		return nil, errors.Wrap(err, "sign ownership proof")
	}

	b.log.Debug("ownership proof built", "domain", domain, "timestamp", ts, "public_key", signer.PublicKey())
	return &SessionProof{
		Origin:    origin,
		Timestamp: ts,
		Domain:    protocol.Domain{LengthBytes: int32(len(domain)), Value: domain},
		Signature: base64.StdEncoding.EncodeToString(sig),
		Payload:   payload,
	}, nil
}

// DomainOf returns the host (with port, if any) of an absolute origin URL.
func DomainOf(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", errors.ErrInvalidOrigin.Newf("%q: %v", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.ErrInvalidOrigin.Newf("%q is not an absolute URL", origin)
	}
	return u.Host, nil
}

// Message returns the ton-proof-item-v2 message bytes.
func Message(addr Address, domain string, timestamp int64, payload string) []byte {
	msg := make([]byte, 0, len(itemPrefix)+4+32+4+len(domain)+8+len(payload))
	msg = append(msg, itemPrefix...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(addr.Workchain))
	msg = append(msg, addr.Hash[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(domain)))
	msg = append(msg, domain...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(timestamp))
	msg = append(msg, payload...)
	return msg
}

// ToSign returns 0xFFFF ‖ "ton-connect" ‖ SHA-256(message).
func ToSign(message []byte) []byte {
	hash := sha256.Sum256(message)
	out := make([]byte, 0, 2+len(connectPrefix)+sha256.Size)
	out = append(out, 0xff, 0xff)
	out = append(out, connectPrefix...)
	return append(out, hash[:]...)
}

// SigningDigest returns the 32 bytes handed to the signer.
func SigningDigest(addr Address, domain string, timestamp int64, payload string) [sha256.Size]byte {
	return sha256.Sum256(ToSign(Message(addr, domain, timestamp, payload)))
}

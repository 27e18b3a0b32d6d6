// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package proof

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/signing"
)

const signDataPrefix = "ton-connect/sign-data/"

// SignData is a signature over a text or binary signData payload.
type SignData struct {
	Address   string
	Timestamp int64
	Domain    string
	Signature []byte
	Params    protocol.SignDataParams
}

// Result returns the wire result of a fulfilled signData request.
func (s *SignData) Result() protocol.SignDataResult {
	return protocol.SignDataResult{
		Signature: base64.StdEncoding.EncodeToString(s.Signature),
		Address:   s.Address,
		Timestamp: s.Timestamp,
		Domain:    s.Domain,
		Payload:   s.Params,
	}
}

// BuildSignData signs a text or binary payload for address towards origin.
// Cell payloads need a cell encoder and are rejected.
//
//	message = 0xFFFF ‖ "ton-connect/sign-data/" ‖ wc (uint32 BE) ‖ hash (32)
//	          ‖ domainLen (uint32 BE) ‖ domain ‖ timestamp (uint64 BE)
//	          ‖ "txt"|"bin" ‖ payloadLen (uint32 BE) ‖ payload
//
// The signer receives SHA-256(message).
func (b *Builder) BuildSignData(ctx context.Context, address, origin string, params protocol.SignDataParams, signer signing.PayloadSigner) (*SignData, error) {
	domain, err := DomainOf(origin)
	if err != nil {
		return nil, err
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	tag, payload, err := signDataPayload(params)
	if err != nil {
		return nil, err
	}

	ts := b.now().Unix()
	digest := sha256.Sum256(SignDataMessage(addr, domain, ts, tag, payload))

	sig, err := signer.Sign(ctx, digest[:])
	if err != nil {
		return nil, errors.Wrap(err, "sign data")
	}

	return &SignData{
		Address:   address,
		Timestamp: ts,
		Domain:    domain,
		Signature: sig,
		Params:    params,
	}, nil
}

// SignDataMessage returns the bytes whose SHA-256 is signed for signData.
func SignDataMessage(addr Address, domain string, timestamp int64, tag string, payload []byte) []byte {
	msg := make([]byte, 0, 2+len(signDataPrefix)+4+32+4+len(domain)+8+len(tag)+4+len(payload))
	msg = append(msg, 0xff, 0xff)
	msg = append(msg, signDataPrefix...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(addr.Workchain))
	msg = append(msg, addr.Hash[:]...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(len(domain)))
	msg = append(msg, domain...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(timestamp))
	msg = append(msg, tag...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(len(payload)))
	return append(msg, payload...)
}

func signDataPayload(p protocol.SignDataParams) (string, []byte, error) {
	switch p.Type {
	case protocol.SignDataText:
		return "txt", []byte(p.Text), nil
	case protocol.SignDataBinary:
		raw, err := base64.StdEncoding.DecodeString(p.Bytes)
		if err != nil {
			return "", nil, errors.ErrInvalidRequest.Newf("binary payload is not base64: %v", err)
		}
		return "bin", raw, nil
	case protocol.SignDataCell:
		return "", nil, errors.ErrMethodNotSupported.New("cell payloads are not supported")
	default:
		return "", nil, errors.ErrInvalidRequest.Newf("unknown payload type %q", p.Type)
	}
}

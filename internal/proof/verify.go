// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package proof

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"

	"github.com/aplane-ton/custody/internal/errors"
)

// Verify checks p against address and the hex ed25519 publicKey.
func Verify(p *SessionProof, address, publicKey string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}
	pub, err := hex.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.ErrInvalidKey.Newf("public key %q", publicKey)
	}
	if int(p.Domain.LengthBytes) != len(p.Domain.Value) {
		return errors.ErrInvalidRequest.Newf("domain length %d does not match %q", p.Domain.LengthBytes, p.Domain.Value)
	}
	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return errors.ErrInvalidRequest.Newf("signature is not base64: %v", err)
	}

	digest := SigningDigest(addr, p.Domain.Value, p.Timestamp, p.Payload)
	if !ed25519.Verify(pub, digest[:], sig) {
		return errors.ErrInvalidRequest.New("proof signature does not verify")
	}
	return nil
}

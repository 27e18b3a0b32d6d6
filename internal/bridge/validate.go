// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/url"

	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/proof"
	"github.com/aplane-ton/custody/internal/protocol"
)

func (b *Bridge) validateConnect(origin string, version int, req *protocol.ConnectRequest) error {
	if version != b.opts.ProtocolVersion {
		return errors.ErrUnsupportedVersion.Newf("got %d, want %d", version, b.opts.ProtocolVersion)
	}
	if _, err := proof.DomainOf(origin); err != nil {
		return err
	}
	if req.ManifestURL == "" {
		return errors.ErrManifestNotFound.New("manifest url is empty")
	}
	if u, err := url.Parse(req.ManifestURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ErrManifestNotFound.Newf("manifest url %q is not absolute", req.ManifestURL)
	}
	if len(req.Items) == 0 {
		return errors.ErrInvalidRequest.New("no connect items")
	}
	for _, item := range req.Items {
		switch item.Name {
		case protocol.ItemTonAddr, protocol.ItemTonProof:
		default:
			return errors.ErrInvalidRequest.Newf("unknown connect item %q", item.Name)
		}
	}
	return nil
}

func (b *Bridge) validateSend(conn Connection, p *protocol.SendParams) error {
	if n := len(p.Messages); n == 0 || n > b.opts.MaxMessages {
		return errors.ErrInvalidRequest.Newf("%d messages, want 1..%d", n, b.opts.MaxMessages)
	}
	if p.ValidUntil != 0 && p.ValidUntil < b.now().Unix() {
		return errors.ErrInvalidRequest.Newf("request expired at %d", p.ValidUntil)
	}
	if p.Network != "" && p.Network != b.opts.Network {
		return errors.ErrInvalidRequest.Newf("network %s, wallet is on %s", p.Network, b.opts.Network)
	}
	if p.From != "" {
		from, err := proof.ParseAddress(p.From)
		if err != nil {
			return err
		}
		own, err := proof.ParseAddress(conn.Account.Address)
		if err != nil || from != own {
			return errors.ErrInvalidRequest.Newf("from %s is not the connected account", p.From)
		}
	}
	for i, m := range p.Messages {
		if _, err := proof.ParseAddress(m.Address); err != nil {
			return errors.Wrapf(err, "message %d", i)
		}
		amount, ok := new(big.Int).SetString(m.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return errors.ErrInvalidRequest.Newf("message %d: amount %q is not a positive integer", i, m.Amount)
		}
		if m.Payload != "" {
			if _, err := base64.StdEncoding.DecodeString(m.Payload); err != nil {
				return errors.ErrInvalidRequest.Newf("message %d: payload is not base64", i)
			}
		}
		if m.StateInit != "" {
			if _, err := base64.StdEncoding.DecodeString(m.StateInit); err != nil {
				return errors.ErrInvalidRequest.Newf("message %d: stateInit is not base64", i)
			}
		}
	}
	return nil
}

func validateSignData(p *protocol.SignDataParams) error {
	switch p.Type {
	case protocol.SignDataText:
		return nil
	case protocol.SignDataBinary:
		if _, err := base64.StdEncoding.DecodeString(p.Bytes); err != nil {
			return errors.ErrInvalidRequest.New("bytes is not base64")
		}
		return nil
	case protocol.SignDataCell:
		return errors.ErrMethodNotSupported.New("cell payloads are not supported")
	default:
		return errors.ErrInvalidRequest.Newf("unknown payload type %q", p.Type)
	}
}

func decodeParams(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.ErrInvalidRequest.Newf("params: %v", err)
	}
	return nil
}

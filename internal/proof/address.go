// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package proof

import (
	"strings"

	"github.com/xssnick/tonutils-go/address"

	"github.com/aplane-ton/custody/internal/errors"
)

// Address is the workchain and account hash of a TON address.
type Address struct {
	Workchain int32
	Hash      [32]byte
}

// ParseAddress accepts the raw form "wc:hex" and the user-friendly base64
// forms.
func ParseAddress(s string) (Address, error) {
	var (
		a   *address.Address
		err error
	)
	if strings.Contains(s, ":") {
		a, err = address.ParseRawAddr(s)
	} else {
		a, err = address.ParseAddr(s)
	}
	if err != nil {
		return Address{}, errors.ErrInvalidAddress.Newf("%q: %v", s, err)
	}

	data := a.Data()
	if len(data) != 32 {
		return Address{}, errors.ErrInvalidAddress.Newf("%q: hash has %d bytes", s, len(data))
	}
	out := Address{Workchain: a.Workchain()}
	copy(out.Hash[:], data)
	return out, nil
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package keys

import "sort"

// LocalKeys is the local key store as seen by the Authority.
type LocalKeys interface {
	// Keys returns every locally available key.
	Keys() []KeyDescriptor
}

// StaticKeys is a LocalKeys backed by a fixed slice.
type StaticKeys []KeyDescriptor

// Keys implements LocalKeys.
func (s StaticKeys) Keys() []KeyDescriptor {
	return s
}

// Authority projects accounts onto the local key store.
type Authority struct {
	local LocalKeys
}

// NewAuthority creates an Authority over local.
func NewAuthority(local LocalKeys) *Authority {
	return &Authority{local: local}
}

// GetSelectableKeys returns the local keys that may sign for account,
// leaving out custodians listed in excludeConfirmedBy.
//
// Results follow the custodian list order; several local keys for the same
// custodian follow local addition order.
func (a *Authority) GetSelectableKeys(account Account, excludeConfirmedBy ...string) []KeyDescriptor {
	excluded := make(map[string]struct{}, len(excludeConfirmedBy))
	for _, pub := range excludeConfirmedBy {
		if norm, ok := Canonical(pub); ok {
			excluded[norm] = struct{}{}
		}
	}

	byKey := a.localByKey()
	var out []KeyDescriptor
	for _, custodian := range account.CustodianSet() {
		if _, skip := excluded[custodian]; skip {
			continue
		}
		out = append(out, byKey[custodian]...)
	}
	return out
}

// CanSign reports whether at least one local key may sign for account.
func (a *Authority) CanSign(account Account) bool {
	return len(a.GetSelectableKeys(account)) > 0
}

// Find returns the local descriptor for pub that is selectable for
// account, preferring the earliest added.
func (a *Authority) Find(account Account, pub string) (KeyDescriptor, bool) {
	norm, ok := Canonical(pub)
	if !ok {
		return KeyDescriptor{}, false
	}
	for _, d := range a.GetSelectableKeys(account) {
		if d.PublicKey == norm {
			return d, true
		}
	}
	return KeyDescriptor{}, false
}

// IsCustodian reports whether pub is a custodian of account.
func IsCustodian(account Account, pub string) bool {
	norm, ok := Canonical(pub)
	if !ok {
		return false
	}
	for _, c := range account.CustodianSet() {
		if c == norm {
			return true
		}
	}
	return false
}

func (a *Authority) localByKey() map[string][]KeyDescriptor {
	if a.local == nil {
		return nil
	}
	local := a.local.Keys()
	sorted := make([]KeyDescriptor, len(local))
	copy(sorted, local)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	byKey := make(map[string][]KeyDescriptor, len(sorted))
	for _, d := range sorted {
		norm, ok := Canonical(d.PublicKey)
		if !ok {
			continue
		}
		d.PublicKey = norm
		byKey[norm] = append(byKey[norm], d)
	}
	return byKey
}

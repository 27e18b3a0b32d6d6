// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package multisig

import "sort"

// Subscribe returns a channel of state changes and a cancel function that
// closes it. Slow subscribers miss changes rather than blocking writers;
// a Change is a hint to re-read, not a delta.
func (t *Tracker) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, t.cfg.SubscriberBuffer)

	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.subMu.Unlock()

	cancel := func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (t *Tracker) notify(c Change) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- c:
		default:
			t.log.Debug("dropping change for slow subscriber", "account", c.Account, "kind", c.Kind)
		}
	}
}

func sortRecords(rs []PendingTransaction) {
	sort.Slice(rs, func(i, j int) bool { return lessID(rs[i].TransactionID, rs[j].TransactionID) })
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package multisig tracks M-of-N approval state of multisig orders.
//
// Two sources feed the tracker. The live pending feed decides the
// threshold of an order and whether it is still alive. The on-chain history
// scan decides exactly who approved and which orders were executed. Both
// are merged; neither overrides the other outside its own concern.
//
// State is an immutable snapshot replaced as a whole on every change, so
// readers never see a partial update. Writers are serialised by a mutex.
// Finalized orders leave the snapshot for a bounded LRU holding their last
// state. The executing hash of every finalized order is kept for the life
// of the tracker, so late feed data never brings an evicted order back.
package multisig

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/util"
)

// DefaultExpiration applies to contract types without a configured window.
const DefaultExpiration = util.DefaultExpiration

type accountState struct {
	records map[string]PendingTransaction
	states  map[string]ConfirmationState
}

func (a *accountState) clone() *accountState {
	out := &accountState{
		records: make(map[string]PendingTransaction, len(a.records)),
		states:  make(map[string]ConfirmationState, len(a.states)),
	}
	for id, r := range a.records {
		out.records[id] = r
	}
	for id, s := range a.states {
		out.states[id] = s
	}
	return out
}

type snapshot map[string]*accountState

type finalized struct {
	record *PendingTransaction
	state  ConfirmationState
}

// Config configures a Tracker.
type Config struct {
	// Expirations maps contract types to their order lifetime.
	Expirations map[string]time.Duration
	// FinalizedCacheSize bounds how many executed orders are remembered.
	FinalizedCacheSize int
	// SubscriberBuffer is the channel capacity given to subscribers.
	SubscriberBuffer int
	Logger           *slog.Logger
}

// Tracker holds confirmation state for every tracked account.
type Tracker struct {
	cfg  Config
	log  *slog.Logger
	snap atomic.Pointer[snapshot]
	done *lru.Cache

	execMu   sync.RWMutex
	executed map[string]map[string]string // account -> order id -> hash

	mu sync.Mutex // serialises writers

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// NewTracker returns an empty tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.FinalizedCacheSize <= 0 {
		cfg.FinalizedCacheSize = 1024
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	cache, err := lru.New(cfg.FinalizedCacheSize)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:  cfg,
		log:  util.LoggerOr(cfg.Logger),
		done:     cache,
		executed: make(map[string]map[string]string),
		subs:     make(map[int]chan Change),
	}
	empty := snapshot{}
	t.snap.Store(&empty)
	return t, nil
}

// Expiration returns the lifetime of orders of contractType.
func (t *Tracker) Expiration(contractType string) time.Duration {
	if d, ok := t.cfg.Expirations[contractType]; ok && d > 0 {
		return d
	}
	return DefaultExpiration
}

// IsExpired reports whether record has outlived its contract window. An
// executed order never expires.
func (t *Tracker) IsExpired(record PendingTransaction, state ConfirmationState, contractType string, now time.Time) bool {
	if state.Sent() {
		return false
	}
	deadline := record.CreatedAt + int64(t.Expiration(contractType)/time.Second)
	return now.Unix() >= deadline
}

// GetConfirmationState returns the state of an order. The zero state means
// nothing is known.
func (t *Tracker) GetConfirmationState(account, txID string) ConfirmationState {
	if f, ok := t.finalized(account, txID); ok {
		return f.state.clone()
	}
	if a := (*t.snap.Load())[account]; a != nil {
		if s, ok := a.states[txID]; ok {
			return s.clone()
		}
	}
	return ConfirmationState{}
}

// Record returns the feed record of an order.
func (t *Tracker) Record(account, txID string) (PendingTransaction, bool) {
	if f, ok := t.finalized(account, txID); ok && f.record != nil {
		return *f.record, true
	}
	if a := (*t.snap.Load())[account]; a != nil {
		r, ok := a.records[txID]
		return r, ok
	}
	return PendingTransaction{}, false
}

// Pending returns the live orders of account, lowest id first.
func (t *Tracker) Pending(account string) []PendingTransaction {
	a := (*t.snap.Load())[account]
	if a == nil {
		return nil
	}
	out := make([]PendingTransaction, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

// Status places an order in its lifecycle.
func (t *Tracker) Status(account keys.Account, txID string, now time.Time) Status {
	if _, ok := t.finalized(account.Address, txID); ok {
		return StatusSent
	}

	var (
		record    PendingTransaction
		hasRecord bool
		state     ConfirmationState
	)
	if a := (*t.snap.Load())[account.Address]; a != nil {
		record, hasRecord = a.records[txID]
		state = a.states[txID]
	}
	switch {
	case state.Sent():
		return StatusSent
	case !hasRecord:
		return StatusUnknown
	case t.IsExpired(record, state, account.ContractType, now):
		return StatusExpired
	case record.SignsRequired > 0 && len(state.Confirmations) >= record.SignsRequired:
		return StatusAwaitingFinalization
	default:
		return StatusPending
	}
}

// MergeConfirmation adds custodian to the approvals of an order. It reports
// whether the state changed. Non-custodians and executed orders are ignored.
func (t *Tracker) MergeConfirmation(account keys.Account, txID, custodian string) bool {
	pub, ok := keys.Canonical(custodian)
	if !ok || !keys.IsCustodian(account, pub) {
		t.log.Debug("ignoring confirmation from non-custodian", "account", account.Address, "tx", txID, "key", custodian)
		return false
	}

	changed := t.update(account.Address, func(a *accountState) bool {
		if _, ok := t.finalized(account.Address, txID); ok {
			return false
		}
		s := a.states[txID]
		if s.Sent() || s.Has(pub) {
			return false
		}
		s = s.clone()
		s.Confirmations = append(s.Confirmations, pub)
		a.states[txID] = s
		return true
	})
	if changed {
		t.notify(Change{Kind: ChangeConfirmation, Account: account.Address, TransactionID: txID})
	}
	return changed
}

// Finalize records the executing transaction hash of an order. Later merges
// for the order are no-ops. A second hash for the same order is ignored.
func (t *Tracker) Finalize(account, txID, hash string) bool {
	if hash == "" {
		return false
	}
	changed := t.update(account, func(a *accountState) bool {
		return t.finalizeLocked(account, a, txID, hash)
	})
	if changed {
		t.notify(Change{Kind: ChangeFinalized, Account: account, TransactionID: txID})
	}
	return changed
}

// finalizeLocked moves an order out of a into the finalized cache.
func (t *Tracker) finalizeLocked(account string, a *accountState, txID, hash string) bool {
	if _, ok := t.finalized(account, txID); ok {
		return false
	}
	s := a.states[txID].clone()
	s.FinalTransactionHash = hash

	f := finalized{state: s}
	if r, ok := a.records[txID]; ok {
		f.record = &r
	}
	t.done.Add(cacheKey(account, txID), f)

	t.execMu.Lock()
	if t.executed[account] == nil {
		t.executed[account] = make(map[string]string)
	}
	t.executed[account][txID] = hash
	t.execMu.Unlock()

	delete(a.states, txID)
	delete(a.records, txID)
	return true
}

// ApplyLiveFeed reconciles the pending feed of account. The feed decides
// the threshold (first observation wins) and liveness: live records it no
// longer lists are dropped. Their confirmations stay until history
// supersedes them. Creators that are custodians count as confirmations.
func (t *Tracker) ApplyLiveFeed(account keys.Account, feed []PendingTransaction) {
	addr := account.Address
	changed := t.update(addr, func(a *accountState) bool {
		changed := false
		seen := make(map[string]struct{}, len(feed))

		for _, in := range feed {
			if _, ok := t.finalized(addr, in.TransactionID); ok {
				continue
			}
			seen[in.TransactionID] = struct{}{}

			merged := in
			if prev, ok := a.records[in.TransactionID]; ok {
				merged.SignsRequired = prev.SignsRequired
				merged.CreatedAt = prev.CreatedAt
				if merged.Creator == "" {
					merged.Creator = prev.Creator
				}
				if in.SignsRequired != prev.SignsRequired {
					t.log.Debug("ignoring threshold change", "account", addr, "tx", in.TransactionID,
						"kept", prev.SignsRequired, "seen", in.SignsRequired)
				}
			}
			if creator, ok := keys.Canonical(merged.Creator); ok {
				merged.Creator = creator
			}
			if prev, ok := a.records[in.TransactionID]; !ok || prev != merged {
				a.records[in.TransactionID] = merged
				changed = true
			}

			if merged.Creator != "" && keys.IsCustodian(account, merged.Creator) {
				s := a.states[in.TransactionID]
				if !s.Has(merged.Creator) {
					s = s.clone()
					s.Confirmations = append(s.Confirmations, merged.Creator)
					a.states[in.TransactionID] = s
					changed = true
				}
			}
		}

		for id := range a.records {
			if _, ok := seen[id]; !ok {
				delete(a.records, id)
				changed = true
			}
		}
		return changed
	})
	if changed {
		t.notify(Change{Kind: ChangeFeed, Account: addr})
	}
}

// ApplyHistory reconciles an on-chain scan of account. Confirmer sets are
// unioned, never shrunk, and executed orders are finalized.
func (t *Tracker) ApplyHistory(account keys.Account, scan HistoryScan) {
	addr := account.Address
	changed := t.update(addr, func(a *accountState) bool {
		changed := false

		if scan.SupersededBelow != "" {
			for id := range a.records {
				if lessID(id, scan.SupersededBelow) {
					delete(a.records, id)
					changed = true
				}
			}
			for id := range a.states {
				if lessID(id, scan.SupersededBelow) {
					delete(a.states, id)
					changed = true
				}
			}
		}

		for id, confirmers := range scan.Confirmations {
			if scan.SupersededBelow != "" && lessID(id, scan.SupersededBelow) {
				continue
			}
			if _, ok := t.finalized(addr, id); ok {
				continue
			}
			s := a.states[id]
			if s.Sent() {
				continue
			}
			updated := s
			cloned := false
			for _, c := range confirmers {
				pub, ok := keys.Canonical(c)
				if !ok || !keys.IsCustodian(account, pub) || updated.Has(pub) {
					continue
				}
				if !cloned {
					updated = s.clone()
					cloned = true
				}
				updated.Confirmations = append(updated.Confirmations, pub)
			}
			if cloned {
				a.states[id] = updated
				changed = true
			}
		}

		for id, hash := range scan.Finalized {
			if hash != "" && t.finalizeLocked(addr, a, id, hash) {
				changed = true
			}
		}
		return changed
	})
	if changed {
		t.notify(Change{Kind: ChangeHistory, Account: addr})
	}
}

// update runs fn on a private copy of the account state and publishes the
// copy as a new snapshot when fn reports a change.
func (t *Tracker) update(account string, fn func(*accountState) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := *t.snap.Load()
	var a *accountState
	if prev := cur[account]; prev != nil {
		a = prev.clone()
	} else {
		a = &accountState{
			records: make(map[string]PendingTransaction),
			states:  make(map[string]ConfirmationState),
		}
	}
	if !fn(a) {
		return false
	}

	next := make(snapshot, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[account] = a
	t.snap.Store(&next)
	return true
}

// finalized returns the remembered end state of an order. Once the LRU has
// evicted it only the executing hash is left.
func (t *Tracker) finalized(account, txID string) (finalized, bool) {
	if v, ok := t.done.Get(cacheKey(account, txID)); ok {
		return v.(finalized), true
	}
	t.execMu.RLock()
	hash, ok := t.executed[account][txID]
	t.execMu.RUnlock()
	if !ok {
		return finalized{}, false
	}
	return finalized{state: ConfirmationState{FinalTransactionHash: hash}}, true
}

func cacheKey(account, txID string) string {
	return account + "/" + txID
}

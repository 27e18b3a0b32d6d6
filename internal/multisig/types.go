// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package multisig

import (
	"strconv"
)

// PendingTransaction is one multisig order as reported by the live feed.
type PendingTransaction struct {
	TransactionID      string `json:"transaction_id"` // decimal order seqno
	Creator            string `json:"creator"`        // hex public key
	SignsRequired      int    `json:"signs_required"` // threshold at creation
	CreatedAt          int64  `json:"created_at"`     // unix seconds
	SignaturesReceived int    `json:"signatures_received"`
}

// ConfirmationState is what is known about who approved an order.
type ConfirmationState struct {
	Confirmations        []string `json:"confirmations"`
	FinalTransactionHash string   `json:"final_transaction_hash,omitempty"`
}

// Sent reports whether the order was executed on chain.
func (s ConfirmationState) Sent() bool {
	return s.FinalTransactionHash != ""
}

// Has reports whether pub approved the order.
func (s ConfirmationState) Has(pub string) bool {
	for _, c := range s.Confirmations {
		if c == pub {
			return true
		}
	}
	return false
}

func (s ConfirmationState) clone() ConfirmationState {
	out := s
	out.Confirmations = append([]string(nil), s.Confirmations...)
	return out
}

// HistoryScan is the result of scanning an account's on-chain history.
type HistoryScan struct {
	// Confirmations maps order ids to the custodians seen approving them.
	Confirmations map[string][]string
	// Finalized maps order ids to the hash of the executing transaction.
	Finalized map[string]string
	// SupersededBelow drops every order with a lower id. Empty keeps all.
	SupersededBelow string
}

// Status is the lifecycle position of an order.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusAwaitingFinalization
	StatusSent
	StatusExpired
)

var statusNames = [...]string{"unknown", "pending", "confirmed-awaiting-finalization", "sent", "expired"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// ChangeKind says which reconciliation step produced a Change.
type ChangeKind string

const (
	ChangeConfirmation ChangeKind = "confirmation"
	ChangeFinalized    ChangeKind = "finalized"
	ChangeFeed         ChangeKind = "feed"
	ChangeHistory      ChangeKind = "history"
)

// Change notifies subscribers that an account's state was replaced.
type Change struct {
	Kind          ChangeKind
	Account       string
	TransactionID string // empty for whole-account updates
}

// lessID orders decimal order ids numerically. Unparseable ids sort as
// strings after parseable ones.
func lessID(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return x < y
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

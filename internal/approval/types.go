// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package approval

import (
	"context"
	"fmt"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/signing"
)

// State is the position of a Flow.
type State int

const (
	StatePreview State = iota
	StateKeySelection
	StateAuthorization
	StateSubmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreview:
		return "preview"
	case StateKeySelection:
		return "key-selection"
	case StateAuthorization:
		return "authorization"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Operation is what a Flow signs: SendOperation or ConfirmOperation.
type Operation interface {
	isOperation()
}

// SendOperation transfers funds on behalf of a connected application.
type SendOperation struct {
	Params protocol.SendParams
}

// ConfirmOperation approves a pending multisig order.
type ConfirmOperation struct {
	TransactionID string
}

func (SendOperation) isOperation()    {}
func (ConfirmOperation) isOperation() {}

// ConfirmRequest names the approval a confirm message carries.
type ConfirmRequest struct {
	PublicKey     string
	TransactionID string
}

// SignedMessage is an external message ready for broadcast.
type SignedMessage struct {
	Hash string // hex message hash
	BOC  []byte // serialized bag of cells
}

// WalletCore encodes and broadcasts wallet messages. Message signing goes
// through the supplied PayloadSigner.
type WalletCore interface {
	EstimateFees(ctx context.Context, account keys.Account, op Operation) (string, error)
	PrepareConfirmMessage(ctx context.Context, account keys.Account, req ConfirmRequest, signer signing.PayloadSigner) (SignedMessage, error)
	PrepareTransferMessage(ctx context.Context, account keys.Account, params protocol.SendParams, signer signing.PayloadSigner) (SignedMessage, error)
	SendMessage(ctx context.Context, account keys.Account, msg SignedMessage) error
}

// PasswordChecker verifies the wallet password. keystore.Store implements it.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, password *crypto.Secret) (bool, error)
}

// Preview is the display data of a Flow.
type Preview struct {
	Account   string
	Signer    string // selected public key
	Fee       string // empty until estimated
	Operation string // "send" or "confirm"

	// Send
	Messages    int
	TotalAmount string // nanotons

	// Confirm. Progress comes from the feed counter, ConfirmedBy from the
	// reconstructed confirmation set; the two may disagree while the feed lags.
	TransactionID string
	Progress      int
	SignsRequired int
	ConfirmedBy   []string
}

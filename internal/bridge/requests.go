// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aplane-ton/custody/internal/approval"
	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/signing"
)

// RequestKind is the method an application invoked.
type RequestKind string

const (
	KindConnect  RequestKind = "connect"
	KindSend     RequestKind = "sendTransaction"
	KindSignData RequestKind = "signData"
)

// RequestState is the position of a request.
type RequestState string

const (
	StateReceived         RequestState = "received"
	StateAwaitingApproval RequestState = "awaiting-approval"
	StateFulfilled        RequestState = "fulfilled"
	StateRejected         RequestState = "rejected"
)

// ApprovalRequest is an application request waiting for the user.
type ApprovalRequest struct {
	ID        string
	Origin    string
	Kind      RequestKind
	CreatedAt time.Time
	State     RequestState

	// Exactly one of these is set, matching Kind.
	Connect  *protocol.ConnectRequest
	Send     *protocol.SendRequest
	SignData *protocol.SignDataRequest
}

// Approval is the user's answer to a request.
type Approval struct {
	// Account answering a connect request.
	Account keys.Account
	// WalletStateInit is reported in the ton_addr item (base64 BOC).
	WalletStateInit string
	// Signer signs the ton_proof of a connect or the signData payload.
	Signer signing.PayloadSigner
	// Message is the signed message of a sendTransaction request.
	Message *approval.SignedMessage
}

type outcome struct {
	approval Approval
	err      error
}

type pending struct {
	req ApprovalRequest
	ch  chan outcome
}

// await registers req, waits for the user and unregisters it. It fills in
// req's ID, CreatedAt and State so the caller reports the same request when
// it resolves. The caller's context ending, the approval timeout and
// CloseSurface all decline.
func (b *Bridge) await(ctx context.Context, req *ApprovalRequest) (Approval, error) {
	req.ID = uuid.NewString()
	req.CreatedAt = b.now()
	req.State = StateAwaitingApproval
	p := &pending{req: *req, ch: make(chan outcome, 1)}

	b.pendingMu.Lock()
	b.pending[req.ID] = p
	b.pendingMu.Unlock()

	b.log.Info("request awaiting approval", "id", req.ID, "origin", req.Origin, "kind", req.Kind)
	announced := *req
	b.obs.broadcast(Event{Type: EventRequested, Origin: req.Origin, Request: &announced})

	var timeout <-chan time.Time
	if b.opts.ApprovalTimeout > 0 {
		timer := time.NewTimer(b.opts.ApprovalTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var out outcome
	select {
	case out = <-p.ch:
		return out.approval, out.err
	case <-ctx.Done():
		out.err = errors.Wrap(errors.ErrUserDeclined, "request abandoned")
	case <-timeout:
		out.err = errors.Wrap(errors.ErrUserDeclined, "approval timed out")
	}

	// An answer delivered under the lock before we got here wins; a send
	// flow may already have claimed the request for broadcast.
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	if _, open := b.pending[req.ID]; !open {
		out = <-p.ch
		return out.approval, out.err
	}
	delete(b.pending, req.ID)
	return out.approval, out.err
}

// resolved reports the final state of req to listeners.
func (b *Bridge) resolved(req ApprovalRequest, err error) {
	req.State = StateFulfilled
	if err != nil {
		req.State = StateRejected
	}
	b.log.Info("request resolved", "id", req.ID, "origin", req.Origin, "state", req.State, "error", err)
	b.obs.broadcast(Event{Type: EventResolved, Origin: req.Origin, Request: &req, Err: err})
}

// SubmitApproval answers request id. Connect and signData approvals need a
// Signer; sendTransaction approvals need the signed Message.
func (b *Bridge) SubmitApproval(id string, a Approval) error {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return errors.ErrInvalidRequest.Newf("no pending request %s", id)
	}
	switch p.req.Kind {
	case KindConnect:
		if a.Account.Address == "" {
			return errors.ErrInvalidRequest.New("connect approval needs an account")
		}
		if _, wantsProof := p.req.Connect.ProofItem(); wantsProof && a.Signer == nil {
			return errors.ErrInvalidRequest.New("ton_proof requested but no signer given")
		}
	case KindSignData:
		if a.Signer == nil {
			return errors.ErrInvalidRequest.New("signData approval needs a signer")
		}
	case KindSend:
		if a.Message == nil {
			return errors.ErrInvalidRequest.New("sendTransaction approval needs a signed message")
		}
	}
	return b.resolveLocked(p, outcome{approval: a})
}

// RejectApproval declines request id.
func (b *Bridge) RejectApproval(id string) error {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return errors.ErrInvalidRequest.Newf("no pending request %s", id)
	}
	return b.resolveLocked(p, outcome{err: errors.Wrap(errors.ErrUserDeclined, "rejected by user")})
}

func (b *Bridge) resolveLocked(p *pending, out outcome) error {
	select {
	case p.ch <- out:
		delete(b.pending, p.req.ID)
		return nil
	default:
		return errors.ErrInvalidState.Newf("request %s already answered", p.req.ID)
	}
}

// StartSendFlow builds the approval flow of sendTransaction request id for
// account. After signing and before broadcasting, the flow claims the
// request with its message. If the request was already declined or timed
// out, the claim fails and the message is never broadcast.
func (b *Bridge) StartSendFlow(id string, account keys.Account) (*approval.Flow, error) {
	b.pendingMu.Lock()
	p, ok := b.pending[id]
	b.pendingMu.Unlock()

	if !ok {
		return nil, errors.ErrInvalidRequest.Newf("no pending request %s", id)
	}
	if p.req.Kind != KindSend {
		return nil, errors.ErrInvalidRequest.Newf("request %s is %s, not %s", id, p.req.Kind, KindSend)
	}

	flow := approval.New(b.opts.Flows, account, approval.SendOperation{Params: p.req.Send.Params},
		approval.BeforeSend(func(msg approval.SignedMessage) error {
			if err := b.SubmitApproval(id, Approval{Account: account, Message: &msg}); err != nil {
				b.log.Info("signed message not broadcast, request ended", "id", id, "error", err)
				return errors.Wrapf(errors.ErrUserDeclined, "request %s ended before broadcast", id)
			}
			return nil
		}))
	return flow, nil
}

// Pending returns the requests awaiting approval, oldest first.
func (b *Bridge) Pending() []ApprovalRequest {
	b.pendingMu.Lock()
	out := make([]ApprovalRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	b.pendingMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CloseSurface declines every request awaiting approval. It is called when
// the surface that shows requests to the user goes away.
func (b *Bridge) CloseSurface(reason string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	for _, p := range b.pending {
		_ = b.resolveLocked(p, outcome{err: errors.Wrapf(errors.ErrUserDeclined, "surface closed: %s", reason)})
	}
	b.log.Info("approval surface closed", "reason", reason)
}

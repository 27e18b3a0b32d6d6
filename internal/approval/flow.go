// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package approval drives a single signing decision from preview to
// submission.
//
// A Flow walks Preview → KeySelection → Authorization → Submitting and ends
// in Done or Failed. A failed signing attempt may be retried from
// Authorization. The network send happens at most once per Flow: an atomic
// in-flight flag gates entry to Submitting, and a separate sent flag
// guards the broadcast itself.
package approval

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aplane-ton/custody/internal/crypto"
	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/multisig"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/signing"
	"github.com/aplane-ton/custody/internal/util"
)

// Deps are the collaborators shared by all flows.
type Deps struct {
	Core      WalletCore
	Passwords PasswordChecker
	Authority *keys.Authority
	Signing   *signing.Backend
	Tracker   *multisig.Tracker // needed for ConfirmOperation
	Logger    *slog.Logger
	Clock     func() time.Time
	// SendTimeout bounds the detached network send.
	SendTimeout time.Duration
}

// Flow is one approval of one operation.
type Flow struct {
	deps    Deps
	log     *slog.Logger
	account keys.Account
	op      Operation
	onDone  func(SignedMessage)
	claim   func(SignedMessage) error

	inFlight atomic.Bool
	sent     atomic.Bool

	mu         sync.Mutex
	state      State
	err        error
	candidates []keys.KeyDescriptor
	selected   *keys.KeyDescriptor
	preview    Preview
	result     *SignedMessage
	sendDone   <-chan struct{}
}

// Option configures a Flow.
type Option func(*Flow)

// OnDone registers fn to receive the signed message when the flow reaches
// Done. It runs once, outside the flow lock.
func OnDone(fn func(SignedMessage)) Option {
	return func(f *Flow) { f.onDone = fn }
}

// BeforeSend registers fn to run after signing and before the network send.
// An error from fn fails the flow and the message is never sent.
func BeforeSend(fn func(SignedMessage) error) Option {
	return func(f *Flow) { f.claim = fn }
}

// New returns a flow in Preview.
func New(deps Deps, account keys.Account, op Operation, opts ...Option) *Flow {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	f := &Flow{
		deps:    deps,
		log:     util.LoggerOr(deps.Logger).With("account", account.Address),
		account: account,
		op:      op,
		state:   StatePreview,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state and the error that accompanies it, if any.
func (f *Flow) State() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

// Preview returns the current display data.
func (f *Flow) Preview() Preview {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.preview
	p.ConfirmedBy = append([]string(nil), f.preview.ConfirmedBy...)
	return p
}

// Candidates returns the keys the user may choose from.
func (f *Flow) Candidates() []keys.KeyDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]keys.KeyDescriptor(nil), f.candidates...)
}

// Selected returns the chosen key.
func (f *Flow) Selected() (keys.KeyDescriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == nil {
		return keys.KeyDescriptor{}, false
	}
	return *f.selected, true
}

// Result returns the signed message once the flow is Done.
func (f *Flow) Result() (SignedMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return SignedMessage{}, false
	}
	return *f.result, true
}

// SendDone is closed when the detached network send has finished. It is
// nil before the flow reaches Done.
func (f *Flow) SendDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendDone
}

// Start derives the preview and the candidate keys and moves to
// KeySelection with the first candidate selected.
func (f *Flow) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePreview {
		return errors.ErrInvalidState.Newf("start in %s", f.state)
	}

	preview, exclude, err := f.derivePreview()
	if err != nil {
		return f.failLocked(err)
	}

	candidates := f.deps.Authority.GetSelectableKeys(f.account, exclude...)
	if len(candidates) == 0 {
		return f.failLocked(errors.ErrNoLocalKey.Newf("account %s", f.account.Address))
	}

	f.preview = preview
	f.candidates = candidates
	f.selectLocked(candidates[0])
	f.state = StateKeySelection
	f.err = nil
	return nil
}

// SelectKey overrides the selected key with the candidate whose public key
// is pub and recomputes the preview. Confirmations that arrived since Start
// show up in the preview, and a key that has confirmed meanwhile is no
// longer selectable.
func (f *Flow) SelectKey(pub string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateKeySelection {
		return errors.ErrInvalidState.Newf("select key in %s", f.state)
	}

	preview, exclude, err := f.derivePreview()
	if err != nil {
		return f.failLocked(err)
	}
	f.candidates = f.deps.Authority.GetSelectableKeys(f.account, exclude...)
	f.preview = preview

	norm, _ := keys.Canonical(pub)
	for _, c := range f.candidates {
		if c.PublicKey == norm {
			f.selectLocked(c)
			return nil
		}
	}
	// Keep the previous choice while it is still selectable.
	switch {
	case f.selected != nil && containsKey(f.candidates, *f.selected):
		f.selectLocked(*f.selected)
	case len(f.candidates) > 0:
		f.selectLocked(f.candidates[0])
	default:
		return f.failLocked(errors.ErrNoLocalKey.Newf("account %s", f.account.Address))
	}
	return errors.ErrInvalidKey.Newf("%s is not a selectable key", pub)
}

// Proceed moves from KeySelection to Authorization.
func (f *Flow) Proceed() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateKeySelection || f.selected == nil {
		return errors.ErrInvalidState.Newf("proceed in %s", f.state)
	}
	f.state = StateAuthorization
	return nil
}

// SubmitPassword authorizes a software key and submits. A wrong password
// leaves the flow in Authorization and returns ErrWrongPassword.
func (f *Flow) SubmitPassword(ctx context.Context, password *crypto.Secret) error {
	if !f.inFlight.CompareAndSwap(false, true) {
		return errors.ErrInFlight.New("submission already running")
	}
	defer f.inFlight.Store(false)

	desc, err := f.authorizing(true)
	if err != nil {
		return err
	}

	ok, err := f.deps.Passwords.CheckPassword(ctx, password)
	if err != nil {
		return f.fail(errors.Wrap(err, "check password"))
	}
	if !ok {
		f.setErr(errors.ErrWrongPassword)
		return errors.ErrWrongPassword
	}

	signer, err := signing.ForKey(desc)
	if err != nil {
		return f.fail(errors.ErrSigning.New(err.Error()))
	}
	return f.submit(ctx, f.deps.Signing.Bind(signer, password))
}

// ConfirmHardware authorizes a hardware key and submits. The device must be
// connected and hold the key; otherwise the flow fails without signing. If
// ctx ends during the probe the result is discarded and the flow stays in
// Authorization.
func (f *Flow) ConfirmHardware(ctx context.Context) error {
	if !f.inFlight.CompareAndSwap(false, true) {
		return errors.ErrInFlight.New("submission already running")
	}
	defer f.inFlight.Store(false)

	desc, err := f.authorizing(false)
	if err != nil {
		return err
	}

	_, _, err = f.deps.Signing.Devices().Ready(ctx, desc.DeviceID, desc.PublicKey)
	if ctx.Err() != nil {
		f.log.Debug("hardware probe abandoned", "device", desc.DeviceID)
		return ctx.Err()
	}
	if err != nil {
		// A device that cannot be reached cannot produce the key either;
		// the root error keeps the two cases apart.
		if errors.ErrHardwareNotConnected.Is(err) {
			err = errors.Wrap(err, "hardware key not found")
		}
		return f.fail(err)
	}

	signer, err := signing.ForKey(desc)
	if err != nil {
		return f.fail(errors.ErrSigning.New(err.Error()))
	}
	return f.submit(ctx, f.deps.Signing.Bind(signer, nil))
}

// Retry re-enters Authorization after a failed attempt with a selected key.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateFailed || f.selected == nil {
		return errors.ErrInvalidState.Newf("retry in %s", f.state)
	}
	f.state = StateAuthorization
	f.err = nil
	return nil
}

// authorizing checks that the flow waits for the given kind of
// authorization and returns the selected key.
func (f *Flow) authorizing(software bool) (keys.KeyDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAuthorization || f.selected == nil {
		return keys.KeyDescriptor{}, errors.ErrInvalidState.Newf("authorize in %s", f.state)
	}
	if f.selected.Kind.IsSoftware() != software {
		return keys.KeyDescriptor{}, errors.ErrInvalidState.Newf("selected key is %s", f.selected.Kind)
	}
	return *f.selected, nil
}

func (f *Flow) submit(ctx context.Context, ps signing.PayloadSigner) error {
	f.mu.Lock()
	f.state = StateSubmitting
	f.err = nil
	f.mu.Unlock()

	f.estimateFees(ctx)

	var (
		msg SignedMessage
		err error
	)
	switch op := f.op.(type) {
	case SendOperation:
		msg, err = f.deps.Core.PrepareTransferMessage(ctx, f.account, op.Params, ps)
	case ConfirmOperation:
		msg, err = f.deps.Core.PrepareConfirmMessage(ctx, f.account,
			ConfirmRequest{PublicKey: ps.PublicKey(), TransactionID: op.TransactionID}, ps)
	default:
		err = errors.ErrInvalidRequest.Newf("unsupported operation %T", op)
	}
	if err != nil {
		if errors.Root(err) == nil {
			err = errors.ErrSigning.New(err.Error())
		}
		return f.fail(err)
	}

	if f.claim != nil {
		if err := f.claim(msg); err != nil {
			return f.fail(err)
		}
	}

	var sendDone <-chan struct{}
	if f.sent.CompareAndSwap(false, true) {
		sendDone = BestEffort{
			Name:    "send message",
			Timeout: f.deps.SendTimeout,
			Run: func(ctx context.Context) error {
				return f.deps.Core.SendMessage(ctx, f.account, msg)
			},
		}.Launch(ctx, f.log)
	}

	f.mu.Lock()
	f.state = StateDone
	f.result = &msg
	if sendDone != nil {
		f.sendDone = sendDone
	}
	onDone := f.onDone
	f.mu.Unlock()

	f.log.Info("approval signed", "hash", msg.Hash, "signer", ps.PublicKey())
	if onDone != nil {
		onDone(msg)
	}
	return nil
}

// estimateFees runs in the background and fills the preview fee when it
// arrives. Failures are logged only.
func (f *Flow) estimateFees(ctx context.Context) {
	BestEffort{
		Name:    "estimate fees",
		Timeout: f.deps.SendTimeout,
		Run: func(ctx context.Context) error {
			fee, err := f.deps.Core.EstimateFees(ctx, f.account, f.op)
			if err != nil {
				return errors.Wrap(errors.ErrNetwork.New(err.Error()), "estimate fees")
			}
			f.mu.Lock()
			f.preview.Fee = fee
			f.mu.Unlock()
			return nil
		},
	}.Launch(ctx, f.log)
}

func (f *Flow) derivePreview() (Preview, []string, error) {
	p := Preview{Account: f.account.Address}

	switch op := f.op.(type) {
	case SendOperation:
		p.Operation = "send"
		p.Messages = len(op.Params.Messages)
		p.TotalAmount = totalAmount(op.Params.Messages)
		return p, nil, nil

	case ConfirmOperation:
		p.Operation = "confirm"
		p.TransactionID = op.TransactionID
		tr := f.deps.Tracker
		if tr == nil {
			return p, nil, errors.ErrInvalidState.New("no confirmation tracker")
		}

		state := tr.GetConfirmationState(f.account.Address, op.TransactionID)
		if state.Sent() {
			return p, nil, errors.ErrAlreadySent.Newf("order %s", op.TransactionID)
		}
		record, ok := tr.Record(f.account.Address, op.TransactionID)
		if !ok {
			return p, nil, errors.ErrInvalidRequest.Newf("order %s is not pending", op.TransactionID)
		}
		if tr.IsExpired(record, state, f.account.ContractType, f.deps.Clock()) {
			return p, nil, errors.ErrExpired.Newf("order %s", op.TransactionID)
		}

		p.Progress = record.SignaturesReceived
		p.SignsRequired = record.SignsRequired
		p.ConfirmedBy = state.Confirmations
		return p, state.Confirmations, nil

	default:
		return p, nil, errors.ErrInvalidRequest.Newf("unsupported operation %T", op)
	}
}

func (f *Flow) selectLocked(d keys.KeyDescriptor) {
	f.selected = &d
	f.preview.Signer = d.PublicKey
	f.preview.Fee = ""
}

func containsKey(list []keys.KeyDescriptor, d keys.KeyDescriptor) bool {
	for _, c := range list {
		if c.PublicKey == d.PublicKey && c.Kind == d.Kind {
			return true
		}
	}
	return false
}

func (f *Flow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failLocked(err)
}

func (f *Flow) failLocked(err error) error {
	f.state = StateFailed
	f.err = err
	f.log.Info("approval failed", "error", err, "kind", errors.KindOf(err))
	return err
}

func (f *Flow) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func totalAmount(msgs []protocol.Message) string {
	total := new(big.Int)
	for _, m := range msgs {
		if v, ok := new(big.Int).SetString(m.Amount, 10); ok {
			total.Add(total, v)
		}
	}
	return total.String()
}

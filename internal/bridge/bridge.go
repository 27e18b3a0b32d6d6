// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package bridge answers session requests from external applications.
//
// Each request is validated, then parked as an ApprovalRequest until the
// user answers through SubmitApproval, RejectApproval or a send flow.
// Every answer, including failures, leaves as a wire event or response with
// a stable numeric code. Requests are never left dangling: a cancelled
// context, the approval timeout and CloseSurface all decline.
package bridge

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aplane-ton/custody/internal/approval"
	"github.com/aplane-ton/custody/internal/errors"
	"github.com/aplane-ton/custody/internal/keys"
	"github.com/aplane-ton/custody/internal/proof"
	"github.com/aplane-ton/custody/internal/protocol"
	"github.com/aplane-ton/custody/internal/util"
)

// Options configure a Bridge.
type Options struct {
	ProtocolVersion int
	MaxMessages     int
	ApprovalTimeout time.Duration // zero waits until the context ends
	Network         string
	Device          util.DeviceConfig
	Proofs          *proof.Builder
	Flows           approval.Deps
	Logger          *slog.Logger
	Clock           func() time.Time
}

// OptionsFromConfig fills the configurable part of Options.
func OptionsFromConfig(cfg *util.Config) Options {
	return Options{
		ProtocolVersion: cfg.ProtocolVersion,
		MaxMessages:     cfg.MaxMessages,
		ApprovalTimeout: cfg.ApprovalTimeoutDuration(),
		Network:         cfg.Network,
		Device:          cfg.Device,
	}
}

// Connection is an established session with an origin.
type Connection struct {
	Origin          string
	Account         keys.Account
	WalletStateInit string
	ConnectedAt     time.Time
}

// Bridge is the wallet side of the session protocol.
type Bridge struct {
	opts    Options
	log     *slog.Logger
	obs     *observers
	eventID atomic.Int64

	connMu      sync.RWMutex
	connections map[string]Connection

	pendingMu sync.Mutex
	pending   map[string]*pending
}

// New returns a bridge.
func New(opts Options) *Bridge {
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = protocol.SupportedVersion
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 4
	}
	if opts.Network == "" {
		opts.Network = protocol.NetworkMainnet
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := util.LoggerOr(opts.Logger)
	if opts.Proofs == nil {
		opts.Proofs = proof.NewBuilder(proof.WithClock(opts.Clock), proof.WithLogger(log))
	}
	return &Bridge{
		opts:        opts,
		log:         log,
		obs:         &observers{log: log},
		connections: make(map[string]Connection),
		pending:     make(map[string]*pending),
	}
}

// Subscribe registers l and returns a function that removes it.
func (b *Bridge) Subscribe(l Listener) func() {
	return b.obs.add(l)
}

// Connection returns the session with origin.
func (b *Bridge) Connection(origin string) (Connection, bool) {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	c, ok := b.connections[origin]
	return c, ok
}

func (b *Bridge) now() time.Time {
	return b.opts.Clock()
}

func (b *Bridge) nextEventID() int64 {
	return b.eventID.Add(1)
}

// Connect opens a session for origin once the user approves.
func (b *Bridge) Connect(ctx context.Context, origin string, protocolVersion int, req protocol.ConnectRequest) (*protocol.ConnectEvent, *protocol.ConnectEventError) {
	if err := b.validateConnect(origin, protocolVersion, &req); err != nil {
		b.log.Info("connect rejected", "origin", origin, "error", err)
		return nil, b.connectError(err)
	}

	areq := ApprovalRequest{Origin: origin, Kind: KindConnect, State: StateReceived, Connect: &req}
	a, err := b.await(ctx, &areq)
	if err != nil {
		b.resolved(areq, err)
		return nil, b.connectError(err)
	}

	items := []protocol.ConnectItemReply{b.addrItem(a.Account, a.WalletStateInit)}
	if item, ok := req.ProofItem(); ok {
		items = append(items, b.proofItem(ctx, origin, a, item.Payload))
	}

	b.connMu.Lock()
	b.connections[origin] = Connection{
		Origin:          origin,
		Account:         a.Account,
		WalletStateInit: a.WalletStateInit,
		ConnectedAt:     b.now(),
	}
	b.connMu.Unlock()

	b.resolved(areq, nil)
	b.obs.broadcast(Event{Type: EventConnected, Origin: origin})
	return &protocol.ConnectEvent{
		Event:   protocol.EventConnect,
		ID:      b.nextEventID(),
		Payload: protocol.ConnectPayload{Items: items, Device: b.DeviceInfo()},
	}, nil
}

// RestoreConnection re-announces an existing session without asking the
// user. Unknown origins get UNKNOWN_APP_ERROR.
func (b *Bridge) RestoreConnection(_ context.Context, origin string) (*protocol.ConnectEvent, *protocol.ConnectEventError) {
	conn, ok := b.Connection(origin)
	if !ok {
		return nil, b.connectError(errors.ErrUnknownApp.Newf("no session with %s", origin))
	}
	b.obs.broadcast(Event{Type: EventConnected, Origin: origin})
	return &protocol.ConnectEvent{
		Event: protocol.EventConnect,
		ID:    b.nextEventID(),
		Payload: protocol.ConnectPayload{
			Items:  []protocol.ConnectItemReply{b.addrItem(conn.Account, conn.WalletStateInit)},
			Device: b.DeviceInfo(),
		},
	}, nil
}

// Disconnect ends the session with origin and declines its open requests.
func (b *Bridge) Disconnect(_ context.Context, origin string) *protocol.DisconnectEvent {
	b.connMu.Lock()
	_, existed := b.connections[origin]
	delete(b.connections, origin)
	b.connMu.Unlock()

	b.declineOrigin(origin, "disconnected")
	if existed {
		b.obs.broadcast(Event{Type: EventDisconnected, Origin: origin})
	}
	return &protocol.DisconnectEvent{Event: protocol.EventDisconnect, ID: b.nextEventID()}
}

// Send asks the user to sign and send a transaction for origin. The result
// is the base64 BOC of the signed external message.
func (b *Bridge) Send(ctx context.Context, origin string, req protocol.SendRequest) protocol.Response {
	conn, ok := b.Connection(origin)
	if !ok {
		return errorResponse(req.ID, errors.ErrUnknownApp.Newf("no session with %s", origin))
	}
	if err := b.validateSend(conn, &req.Params); err != nil {
		b.log.Info("send rejected", "origin", origin, "id", req.ID, "error", err)
		return errorResponse(req.ID, err)
	}

	areq := ApprovalRequest{Origin: origin, Kind: KindSend, State: StateReceived, Send: &req}
	a, err := b.await(ctx, &areq)
	b.resolved(areq, err)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return protocol.Response{ID: req.ID, Result: base64.StdEncoding.EncodeToString(a.Message.BOC)}
}

// SignData asks the user to sign a text or binary payload for origin.
func (b *Bridge) SignData(ctx context.Context, origin string, req protocol.SignDataRequest) protocol.Response {
	conn, ok := b.Connection(origin)
	if !ok {
		return errorResponse(req.ID, errors.ErrUnknownApp.Newf("no session with %s", origin))
	}
	if err := validateSignData(&req.Params); err != nil {
		return errorResponse(req.ID, err)
	}

	areq := ApprovalRequest{Origin: origin, Kind: KindSignData, State: StateReceived, SignData: &req}
	a, err := b.await(ctx, &areq)
	if err != nil {
		b.resolved(areq, err)
		return errorResponse(req.ID, err)
	}

	sd, err := b.opts.Proofs.BuildSignData(ctx, conn.Account.Address, origin, req.Params, a.Signer)
	b.resolved(areq, err)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return protocol.Response{ID: req.ID, Result: sd.Result()}
}

// Handle dispatches an RPC by method name.
func (b *Bridge) Handle(ctx context.Context, origin, method, id string, params []byte) protocol.Response {
	switch method {
	case protocol.MethodSendTransaction:
		var p protocol.SendParams
		if err := decodeParams(params, &p); err != nil {
			return errorResponse(id, err)
		}
		return b.Send(ctx, origin, protocol.SendRequest{ID: id, Params: p})
	case protocol.MethodSignData:
		var p protocol.SignDataParams
		if err := decodeParams(params, &p); err != nil {
			return errorResponse(id, err)
		}
		return b.SignData(ctx, origin, protocol.SignDataRequest{ID: id, Params: p})
	case protocol.MethodDisconnect:
		b.Disconnect(ctx, origin)
		return protocol.Response{ID: id, Result: struct{}{}}
	default:
		return errorResponse(id, errors.ErrMethodNotSupported.Newf("%q", method))
	}
}

func (b *Bridge) declineOrigin(origin, reason string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for _, p := range b.pending {
		if p.req.Origin == origin {
			_ = b.resolveLocked(p, outcome{err: errors.Wrap(errors.ErrUserDeclined, reason)})
		}
	}
}

func (b *Bridge) addrItem(account keys.Account, stateInit string) protocol.ConnectItemReply {
	return protocol.ConnectItemReply{
		Name:            protocol.ItemTonAddr,
		Address:         account.Address,
		Network:         b.opts.Network,
		PublicKey:       account.PublicKey,
		WalletStateInit: stateInit,
	}
}

func (b *Bridge) proofItem(ctx context.Context, origin string, a Approval, payload string) protocol.ConnectItemReply {
	reply := protocol.ConnectItemReply{Name: protocol.ItemTonProof}
	p, err := b.opts.Proofs.BuildOwnershipProof(ctx, a.Account.Address, origin, payload, a.Signer)
	if err != nil {
		b.log.Warn("ton_proof failed", "origin", origin, "error", err)
		reply.Error = protocol.NewError(err)
		return reply
	}
	wire := p.Wire()
	reply.Proof = &wire
	return reply
}

// DeviceInfo describes this wallet to connecting applications.
func (b *Bridge) DeviceInfo() protocol.DeviceInfo {
	return protocol.DeviceInfo{
		Platform:           b.opts.Device.Platform,
		AppName:            b.opts.Device.AppName,
		AppVersion:         b.opts.Device.AppVersion,
		MaxProtocolVersion: b.opts.ProtocolVersion,
		Features: []protocol.Feature{
			{Name: "SendTransaction", MaxMessages: b.opts.MaxMessages},
			{Name: "SignData", Types: []string{protocol.SignDataText, protocol.SignDataBinary}},
		},
	}
}

func (b *Bridge) connectError(err error) *protocol.ConnectEventError {
	return &protocol.ConnectEventError{
		Event:   protocol.EventConnectError,
		ID:      b.nextEventID(),
		Payload: *protocol.NewError(err),
	}
}

func errorResponse(id string, err error) protocol.Response {
	return protocol.Response{ID: id, Error: protocol.NewError(err)}
}

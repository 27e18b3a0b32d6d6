// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package protocol defines the JSON messages exchanged with external
// applications over the session bridge.
// This is the single source of truth for the wire protocol.
package protocol

// SupportedVersion is the bridge protocol version spoken by this wallet.
const SupportedVersion = 2

// Event names
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
)

// RPC method names
const (
	MethodSendTransaction = "sendTransaction"
	MethodSignData        = "signData"
	MethodDisconnect      = "disconnect"
)

// Connect item names
const (
	ItemTonAddr  = "ton_addr"
	ItemTonProof = "ton_proof"
)

// SignData payload types
const (
	SignDataText   = "text"
	SignDataBinary = "binary"
	SignDataCell   = "cell"
)

// Network identifiers (global chain ids)
const (
	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

// ConnectItem is one item requested by an application on connect.
type ConnectItem struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"` // Only for ton_proof
}

// ConnectRequest is sent by an application to open a session.
type ConnectRequest struct {
	ManifestURL string        `json:"manifestUrl"`
	Items       []ConnectItem `json:"items"`
}

// ProofItem returns the requested ton_proof item, if any.
func (r *ConnectRequest) ProofItem() (ConnectItem, bool) {
	for _, item := range r.Items {
		if item.Name == ItemTonProof {
			return item, true
		}
	}
	return ConnectItem{}, false
}

// Domain is the length-prefixed application domain inside a proof.
type Domain struct {
	LengthBytes int32  `json:"lengthBytes"`
	Value       string `json:"value"`
}

// TonProof is the wire form of a session ownership proof.
type TonProof struct {
	Timestamp int64  `json:"timestamp"`
	Domain    Domain `json:"domain"`
	Signature string `json:"signature"` // base64
	Payload   string `json:"payload"`
}

// ConnectItemReply answers one ConnectItem. Fields irrelevant to the item
// name are omitted.
type ConnectItemReply struct {
	Name            string    `json:"name"`
	Address         string    `json:"address,omitempty"`
	Network         string    `json:"network,omitempty"`
	PublicKey       string    `json:"publicKey,omitempty"`
	WalletStateInit string    `json:"walletStateInit,omitempty"`
	Proof           *TonProof `json:"proof,omitempty"`
	Error           *Error    `json:"error,omitempty"`
}

// Feature advertises a capability of the wallet.
type Feature struct {
	Name        string   `json:"name"`
	MaxMessages int      `json:"maxMessages,omitempty"`
	Types       []string `json:"types,omitempty"`
}

// DeviceInfo describes the wallet to the application.
type DeviceInfo struct {
	Platform           string    `json:"platform"`
	AppName            string    `json:"appName"`
	AppVersion         string    `json:"appVersion"`
	MaxProtocolVersion int       `json:"maxProtocolVersion"`
	Features           []Feature `json:"features"`
}

// ConnectPayload is the body of a successful connect event.
type ConnectPayload struct {
	Items  []ConnectItemReply `json:"items"`
	Device DeviceInfo         `json:"device"`
}

// ConnectEvent is emitted when a session is established or restored.
type ConnectEvent struct {
	Event   string         `json:"event"`
	ID      int64          `json:"id"`
	Payload ConnectPayload `json:"payload"`
}

// ConnectEventError is emitted when a session cannot be established.
type ConnectEventError struct {
	Event   string `json:"event"`
	ID      int64  `json:"id"`
	Payload Error  `json:"payload"`
}

// DisconnectEvent is emitted when the wallet ends a session.
type DisconnectEvent struct {
	Event   string   `json:"event"`
	ID      int64    `json:"id"`
	Payload struct{} `json:"payload"`
}

// Message is a single outgoing transfer of a send request.
type Message struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"` // nanotons, decimal
	Payload   string `json:"payload,omitempty"`
	StateInit string `json:"stateInit,omitempty"`
}

// SendParams is the body of a sendTransaction request.
type SendParams struct {
	ValidUntil int64     `json:"valid_until,omitempty"`
	Network    string    `json:"network,omitempty"`
	From       string    `json:"from,omitempty"`
	Messages   []Message `json:"messages"`
}

// SendRequest asks the wallet to sign and send a transaction.
type SendRequest struct {
	ID     string     `json:"id"`
	Params SendParams `json:"params"`
}

// SignDataParams is the body of a signData request.
type SignDataParams struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Bytes  string `json:"bytes,omitempty"` // base64
	Schema string `json:"schema,omitempty"`
	Cell   string `json:"cell,omitempty"`
}

// SignDataRequest asks the wallet to sign arbitrary data.
type SignDataRequest struct {
	ID     string         `json:"id"`
	Params SignDataParams `json:"params"`
}

// SignDataResult is returned by a fulfilled signData request.
type SignDataResult struct {
	Signature string         `json:"signature"` // base64
	Address   string         `json:"address"`
	Timestamp int64          `json:"timestamp"`
	Domain    string         `json:"domain"`
	Payload   SignDataParams `json:"payload"`
}

// Response answers an RPC request. Exactly one of Result and Error is set.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package errors implements the coded error taxonomy shared by the signing
// core.
//
// Every failure that may cross a component boundary wraps one of the root
// errors declared here. A root error carries a stable numeric code and a
// Kind, so callers can decide whether to block inline (validation,
// authentication), answer a requester automatically (protocol), only log
// (network) or hide the detail entirely (internal).
//
// Create instances at the point of failure with ErrXyz.New / ErrXyz.Newf or
// Wrap(err, "..."): the innermost wrap records a stack trace, printed with %+v.
package errors

import (
	stdlib "errors"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Kind groups root errors by how they must be handled.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindProtocol
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindProtocol:
		return "protocol"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidOrigin is returned when a requesting origin is not an
	// absolute URL.
	ErrInvalidOrigin = Register(10, KindValidation, "invalid origin")

	// ErrInvalidRequest is used for malformed external requests.
	ErrInvalidRequest = Register(11, KindValidation, "invalid request")

	// ErrInvalidAddress is returned when an account address cannot be parsed.
	ErrInvalidAddress = Register(12, KindValidation, "invalid address")

	// ErrInvalidKey is returned for public keys that are not valid ed25519
	// points.
	ErrInvalidKey = Register(13, KindValidation, "invalid key")

	// ErrNoLocalKey signals that none of the account custodians is present
	// in the local key store. It is not an authorization failure.
	ErrNoLocalKey = Register(14, KindValidation, "no local key can sign")

	// ErrExpired is returned when acting on an expired multisig order.
	ErrExpired = Register(15, KindValidation, "transaction expired")

	// ErrAlreadySent is returned when acting on a finalized multisig order.
	ErrAlreadySent = Register(16, KindValidation, "transaction already sent")

	// ErrWrongPassword is returned when the credential check fails.
	ErrWrongPassword = Register(20, KindAuthentication, "wrong password")

	// ErrHardwareNotConnected is returned when the connectivity probe of a
	// hardware device fails.
	ErrHardwareNotConnected = Register(21, KindAuthentication, "hardware device not connected")

	// ErrHardwareKeyNotFound is returned when the selected key is absent
	// from the connected device.
	ErrHardwareKeyNotFound = Register(22, KindAuthentication, "hardware key not found")

	// ErrUnsupportedVersion is returned for protocol versions this bridge
	// does not speak.
	ErrUnsupportedVersion = Register(30, KindProtocol, "unsupported protocol version")

	// ErrMethodNotSupported is returned for unknown request methods.
	ErrMethodNotSupported = Register(31, KindProtocol, "method not supported")

	// ErrUnknownApp is returned for requests from an origin with no session.
	ErrUnknownApp = Register(32, KindProtocol, "unknown app")

	// ErrManifestNotFound is returned when the app manifest is missing.
	ErrManifestNotFound = Register(33, KindProtocol, "manifest not found")

	// ErrUserDeclined is returned when the user rejected a request or the
	// approving surface went away.
	ErrUserDeclined = Register(34, KindProtocol, "user declined")

	// ErrNetwork wraps failures of network collaborators.
	ErrNetwork = Register(40, KindNetwork, "network error")

	// ErrInvalidState is returned when an operation is called in a state
	// that does not accept it.
	ErrInvalidState = Register(50, KindInternal, "invalid state")

	// ErrInFlight is returned when a guarded operation is already running.
	ErrInFlight = Register(51, KindInternal, "operation in flight")

	// ErrSigning wraps failures of the signing collaborator.
	ErrSigning = Register(52, KindInternal, "signing failed")

	// ErrPanic is only set when we recover from a panic.
	ErrPanic = Register(111222, KindInternal, "panic")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime. Reusing a code panics.
//
// Use this function only during a program startup phase.
func Register(code uint32, kind Kind, description string) *Error {
	if _, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered", code))
	}
	err := &Error{
		code: code,
		kind: kind,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes keeps track of used codes to ensure their uniqueness.
var usedCodes = map[uint32]*Error{
	1: nil, // Code 1 is reserved for uncoded errors.
}

// Error represents a root error.
type Error struct {
	code uint32
	kind Kind
	desc string
}

func (e Error) Error() string {
	return e.desc
}

// Code returns the registered numeric code.
func (e Error) Code() uint32 {
	return e.code
}

// Kind returns the handling category.
func (e Error) Kind() Kind {
	return e.kind
}

// New returns a new error whose root cause is e.
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is checks if given error instance is of a given kind/type. This involves
// unwrapping given error using the Cause method if available.
func (e *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if e == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == e {
			return true
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// Wrap extends given error with an additional information.
//
// If err is nil, this returns nil, avoiding the need for an if statement when
// wrapping a error returned at the end of a function
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// Attach a stack trace only once, at the innermost wrap.
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends given error with an additional information.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrappedError struct {
	msg    string
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

func (e *wrappedError) Unwrap() error {
	return e.parent
}

// Format prints the full stack trace with %+v.
func (e *wrappedError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s: %+v", e.msg, e.parent)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// Root returns the registered root error of err, or nil when err does not
// wrap any of them.
func Root(err error) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		err = stdlib.Unwrap(err)
	}
	return nil
}

// KindOf returns the handling category of err. Uncoded errors are internal.
func KindOf(err error) Kind {
	if r := Root(err); r != nil {
		return r.kind
	}
	return KindInternal
}

// Recover captures a panic and stops its propagation. If panic happens it is
// transformed into an ErrPanic instance and assigned to given error. Call
// this function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

func stackTrace(err error) errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	for {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return nil
		}
	}
}

// causer is an interface implemented by an error that supports wrapping.
type causer interface {
	Cause() error
}

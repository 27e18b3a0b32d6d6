// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package protocol

import (
	"fmt"

	"github.com/aplane-ton/custody/internal/errors"
)

// ErrorCode is the stable numeric error code sent to applications.
type ErrorCode int

const (
	UnknownError          ErrorCode = 0
	BadRequestError       ErrorCode = 1
	ManifestNotFoundError ErrorCode = 2
	ManifestContentError  ErrorCode = 3
	UnknownAppError       ErrorCode = 100
	UserDeclinedError     ErrorCode = 300
	MethodNotSupported    ErrorCode = 400
)

func (c ErrorCode) String() string {
	switch c {
	case UnknownError:
		return "UNKNOWN_ERROR"
	case BadRequestError:
		return "BAD_REQUEST_ERROR"
	case ManifestNotFoundError:
		return "MANIFEST_NOT_FOUND_ERROR"
	case ManifestContentError:
		return "MANIFEST_CONTENT_ERROR"
	case UnknownAppError:
		return "UNKNOWN_APP_ERROR"
	case UserDeclinedError:
		return "USER_DECLINED_ERROR"
	case MethodNotSupported:
		return "METHOD_NOT_SUPPORTED"
	default:
		return fmt.Sprintf("ERROR_%d", int(c))
	}
}

// Error is the wire error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// genericMessage replaces the text of errors that must not leak.
const genericMessage = "unknown error"

var wireCodes = map[*errors.Error]ErrorCode{
	errors.ErrInvalidOrigin:      BadRequestError,
	errors.ErrInvalidRequest:     BadRequestError,
	errors.ErrInvalidAddress:     BadRequestError,
	errors.ErrExpired:            BadRequestError,
	errors.ErrAlreadySent:        BadRequestError,
	errors.ErrUnsupportedVersion: BadRequestError,
	errors.ErrManifestNotFound:   ManifestNotFoundError,
	errors.ErrUnknownApp:         UnknownAppError,
	errors.ErrUserDeclined:       UserDeclinedError,
	errors.ErrMethodNotSupported: MethodNotSupported,
}

// ErrorInfo translates any error into its wire code and a human readable
// message. Errors without a registered wire code are reported as
// UNKNOWN_ERROR; internal and network failures never expose their text.
func ErrorInfo(err error) (ErrorCode, string) {
	if err == nil {
		return UnknownError, genericMessage
	}
	if wire, ok := err.(*Error); ok {
		return wire.Code, wire.Message
	}

	root := errors.Root(err)
	if root == nil {
		return UnknownError, genericMessage
	}
	if code, ok := wireCodes[root]; ok {
		return code, err.Error()
	}

	switch root.Kind() {
	case errors.KindValidation:
		return BadRequestError, err.Error()
	case errors.KindProtocol, errors.KindAuthentication:
		return UnknownError, root.Error()
	default:
		return UnknownError, genericMessage
	}
}

// NewError builds a wire error from any error.
func NewError(err error) *Error {
	code, msg := ErrorInfo(err)
	return &Error{Code: code, Message: msg}
}

// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package errs

import (
	"errors"
	"fmt"
)

// Error is the daemon's structured error type: a domain-coded error carrying
// arbitrary key/value metadata for logging.
type Error struct {
	Code     Code
	Domain   Domain
	Message  string
	Details  string
	Metadata map[string]string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s-%d] %s", e.Domain, e.Code, e.Message)
	if e.Details != "" {
		msg += " - " + e.Details
	}
	return msg
}

func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// New builds an Error from a registered code.
func New(code Code, details string) *Error {
	def, ok := messages[code]
	if !ok {
		return &Error{Code: code, Domain: "UNKNOWN", Message: "unknown error", Details: details}
	}
	return &Error{Code: code, Domain: def.domain, Message: def.message, Details: details}
}

// Is implements errors.Is matching: same code within the same domain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Domain == t.Domain
}

// Wrap re-codes err, preserving its metadata and recording the original
// code/domain/message under wrapped_* keys.
func Wrap(err error, code Code) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		out := New(code, inner.Details)
		for k, v := range inner.Metadata {
			out.WithMetadata(k, v)
		}
		out.WithMetadata("wrapped_code", fmt.Sprintf("%d", inner.Code))
		out.WithMetadata("wrapped_domain", string(inner.Domain))
		out.WithMetadata("wrapped_message", inner.Message)
		return out
	}
	return New(code, err.Error())
}

func (e *Error) Unwrap() error {
	if msg, ok := e.Metadata["wrapped_error"]; ok {
		return errors.New(msg)
	}
	return nil
}

// GetCode extracts the Code from err's chain, if any.
func GetCode(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// NewCommandError builds an Error describing a failed subprocess invocation.
func NewCommandError(cmd string, exitCode int, stderr string) *Error {
	return New(CommandStartFailed, "command execution failed").
		WithMetadata("command", cmd).
		WithMetadata("exit_code", fmt.Sprintf("%d", exitCode)).
		WithMetadata("stderr", stderr)
}

// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package fault defines the error taxonomy of the register communication
// layer. Every error returned across a package boundary is a *Error, so
// callers can branch on Kind with errors.Is against the sentinels below.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// Load-time, fatal.
	KindConfigFormat
	// Caller misuse, surfaced and never retried.
	KindUnknownRegister
	KindUnknownDevice
	KindDuplicateRegister
	KindInvalidDevice
	// Transient link faults. Retry policy belongs to the caller.
	KindLinkTimeout
	KindLinkFraming
	KindDeviceNACK
	KindPortUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConfigFormat:
		return "ConfigFormatError"
	case KindUnknownRegister:
		return "UnknownRegisterError"
	case KindUnknownDevice:
		return "UnknownDeviceError"
	case KindDuplicateRegister:
		return "DuplicateRegisterError"
	case KindInvalidDevice:
		return "InvalidDeviceError"
	case KindLinkTimeout:
		return "LinkTimeoutError"
	case KindLinkFraming:
		return "LinkFramingError"
	case KindDeviceNACK:
		return "DeviceNACKError"
	case KindPortUnavailable:
		return "PortUnavailableError"
	default:
		return "UnknownError"
	}
}

// Transient reports whether the kind is a link fault a caller may retry.
func (k Kind) Transient() bool {
	switch k {
	case KindLinkTimeout, KindLinkFraming, KindDeviceNACK, KindPortUnavailable:
		return true
	}
	return false
}

// Error is the error type of this module.
type Error struct {
	Op       string // Operation that failed
	Kind     Kind
	Device   string // Car number, if known
	Register string // Register name or number, if known
	Code     byte   // Modbus exception code for KindDeviceNACK
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Device != "" {
		fmt.Fprintf(&b, " device=%s", e.Device)
	}
	if e.Register != "" {
		fmt.Fprintf(&b, " register=%s", e.Register)
	}
	if e.Kind == KindDeviceNACK {
		fmt.Fprintf(&b, " exception=0x%02X", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, which lets the sentinels below be
// used with errors.Is regardless of the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

var (
	ErrConfigFormat      = &Error{Kind: KindConfigFormat}
	ErrUnknownRegister   = &Error{Kind: KindUnknownRegister}
	ErrUnknownDevice     = &Error{Kind: KindUnknownDevice}
	ErrDuplicateRegister = &Error{Kind: KindDuplicateRegister}
	ErrInvalidDevice     = &Error{Kind: KindInvalidDevice}
	ErrLinkTimeout       = &Error{Kind: KindLinkTimeout}
	ErrLinkFraming       = &Error{Kind: KindLinkFraming}
	ErrDeviceNACK        = &Error{Kind: KindDeviceNACK}
	ErrPortUnavailable   = &Error{Kind: KindPortUnavailable}
)

// New returns an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Newf returns an error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// WithDevice annotates err with a car number and register name when it is a
// *Error that does not carry them yet. Other errors are returned unchanged.
func WithDevice(err error, device, register string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	c := *e
	if c.Device == "" {
		c.Device = device
	}
	if c.Register == "" {
		c.Register = register
	}
	return &c
}

//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package lpsi implements the two-party Payable Labeled Private Set
// Intersection protocol: a Sender holding labeled records (x,v) and a
// Receiver holding a query set {y} run a six-phase protocol (OPRF,
// hash layout, PIR, OT, decrypt) so that the Receiver learns exactly
// {(x,v) : x in the intersection} and the Sender learns only the
// intersection size.
package lpsi

import "fmt"

// ErrorKind classifies a session-terminating failure.
type ErrorKind int

const (
	// ErrInputShape reports a database or query whose size is
	// inconsistent with the declared parameters.
	ErrInputShape ErrorKind = iota

	// ErrBfvModulusOverflow reports a payload value that does not fit
	// the BFV plaintext modulus.
	ErrBfvModulusOverflow

	// ErrBfvNoiseExhausted reports a BFV decryption invariant failure
	// (noise budget exhausted), which indicates a parameter bug rather
	// than an adversarial input.
	ErrBfvNoiseExhausted

	// ErrCuckooOverflow reports that outer or inner cuckoo placement
	// exceeded its retry bound.
	ErrCuckooOverflow

	// ErrMaliciousOtReject reports that the OOS OT consistency check
	// failed; the counterparty is treated as adversarial.
	ErrMaliciousOtReject

	// ErrHeaderCorruption reports a decrypted record whose length
	// header is inconsistent with the available bytes. Recovered
	// per-record: the offending record is skipped, the session
	// continues.
	ErrHeaderCorruption

	// ErrDecodeFailure reports a malformed point encoding. Classed as
	// per-record by Recoverable, but the OPRF steps that produce it
	// return it to the caller, which ends the session; no element is
	// skipped.
	ErrDecodeFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInputShape:
		return "InputShape"
	case ErrBfvModulusOverflow:
		return "BfvModulusOverflow"
	case ErrBfvNoiseExhausted:
		return "BfvNoiseExhausted"
	case ErrCuckooOverflow:
		return "CuckooOverflow"
	case ErrMaliciousOtReject:
		return "MaliciousOtReject"
	case ErrHeaderCorruption:
		return "HeaderCorruption"
	case ErrDecodeFailure:
		return "DecodeFailure"
	default:
		return "Unknown"
	}
}

// Error wraps a session-terminating failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lpsi: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr wraps err with kind, or returns nil if err is nil.
func wrapErr(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Recoverable reports whether the error kind is classed as a
// per-record failure (HeaderCorruption, DecodeFailure) rather than a
// session-terminating one. Of the two, only HeaderCorruption is
// actually recovered in place (the Receiver skips the record);
// DecodeFailure errors are returned and end the session.
func (k ErrorKind) Recoverable() bool {
	return k == ErrHeaderCorruption || k == ErrDecodeFailure
}

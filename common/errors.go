package common

import "fmt"

// ErrType partitions the failures that cross component boundaries. The
// gossip layer, the event store and the worker all dispatch on it.
type ErrType uint32

const (
	// Duplicate signals an insert of an event that is already stored.
	// Benign when the event arrived through gossip.
	Duplicate ErrType = iota

	// MissingParents signals an insert whose parents are not stored yet.
	// The caller may fetch the listed hashes and retry.
	MissingParents

	// Validation signals a malformed structure, signature or hash.
	Validation

	// Syntax signals semantically invalid configuration or event content.
	Syntax

	// Network signals a transport failure; drives backoff, never fatal.
	Network

	// NotFound signals an unknown ledger or peer; fatal for the session.
	NotFound

	// Load signals backpressure; the producer should retry later.
	Load

	// ProtocolViolation signals a signed-payload mismatch, a fork attempt
	// by a non-witness, or an impossible merge height. The sending peer
	// is deleted.
	ProtocolViolation

	// KeyNotFound signals a store read miss.
	KeyNotFound

	// TooLate signals a store read beyond the cache window.
	TooLate

	// SkippedIndex signals a store write that would leave a gap.
	SkippedIndex
)

func (t ErrType) String() string {
	switch t {
	case Duplicate:
		return "DuplicateError"
	case MissingParents:
		return "MissingParents"
	case Validation:
		return "ValidationError"
	case Syntax:
		return "SyntaxError"
	case Network:
		return "NetworkError"
	case NotFound:
		return "NotFoundError"
	case Load:
		return "LoadError"
	case ProtocolViolation:
		return "ProtocolViolation"
	case KeyNotFound:
		return "Not Found"
	case TooLate:
		return "Too Late"
	case SkippedIndex:
		return "Skipped Index"
	}
	return "Unknown"
}

// Error is the project-wide typed error. Hashes carries the missing
// parent hashes for MissingParents errors. Cause preserves the chain
// across layers.
type Error struct {
	Type   ErrType
	Msg    string
	Hashes []string
	Cause  error
}

func NewError(t ErrType, msg string) *Error {
	return &Error{Type: t, Msg: msg}
}

func NewMissingParents(hashes []string) *Error {
	return &Error{Type: MissingParents, Msg: fmt.Sprintf("%d missing parents", len(hashes)), Hashes: hashes}
}

func WrapError(t ErrType, msg string, cause error) *Error {
	return &Error{Type: t, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is an *Error of type t, at any depth of the
// cause chain.
func Is(err error, t ErrType) bool {
	for err != nil {
		if cErr, ok := err.(*Error); ok {
			if cErr.Type == t {
				return true
			}
			err = cErr.Cause
			continue
		}
		if u, ok := err.(interface{ Unwrap() error }); ok {
			err = u.Unwrap()
			continue
		}
		return false
	}
	return false
}

// NetworkError carries the transport coordinates of a failed exchange.
type NetworkError struct {
	Address        string
	Code           string
	Errno          int
	Port           int
	HTTPStatusCode int
	Cause          error
}

func (e *NetworkError) Error() string {
	if e.HTTPStatusCode != 0 {
		return fmt.Sprintf("NetworkError: %s (http %d): %v", e.Address, e.HTTPStatusCode, e.Cause)
	}
	return fmt.Sprintf("NetworkError: %s: %v", e.Address, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

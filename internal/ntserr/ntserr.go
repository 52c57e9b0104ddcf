// Package ntserr defines the closed error taxonomy the core mediation
// layer raises (spec §7). Every component returns one of these kinds
// instead of an ad hoc error string, so the Router can format a
// one-line user-facing message without inspecting concrete types
// outside this package.
package ntserr

import "fmt"

// Kind identifies a member of the error taxonomy.
type Kind string

const (
	KindSandboxEscape          Kind = "SandboxEscape"
	KindProtected              Kind = "Protected"
	KindTooLarge               Kind = "TooLarge"
	KindNotRead                Kind = "NotRead"
	KindOptimisticLockFailure  Kind = "OptimisticLockFailure"
	KindAddressingError        Kind = "AddressingError"
	KindContentMismatch        Kind = "ContentMismatch"
	KindAmbiguousMatch         Kind = "AmbiguousMatch"
	KindExternalChangeDetected Kind = "ExternalChangeDetected"
	KindStuckTransaction       Kind = "StuckTransaction"
	KindIOFailure              Kind = "IOFailure"
)

// Error is the concrete error type raised by every core component.
// Fatal kinds abort the operation (and, inside a transaction, trigger
// rollback of the whole scope); ExternalChangeDetected is the one
// non-fatal kind (spec §7) and callers may choose to continue.
type Error struct {
	Kind Kind
	Msg  string

	// Diagnostic payload, populated depending on Kind.
	Path            string
	ExpectedCRC     uint32
	ActualCRC       uint32
	HasCRCs         bool
	ExpectedText    string
	ActualText      string
	StartLine       int
	EndLine         int
	FileLineCount   int
	MatchCount      int
	Wrapped         error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Fatal reports whether this kind aborts the enclosing operation.
func (e *Error) Fatal() bool {
	return e.Kind != KindExternalChangeDetected
}

func New(kind Kind, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
}

func Wrap(kind Kind, err error, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), Wrapped: err}
}

func SandboxEscape(path string) *Error {
	return &Error{Kind: KindSandboxEscape, Path: path,
		Msg: fmt.Sprintf("path %q escapes project root", path)}
}

func Protected(path string) *Error {
	return &Error{Kind: KindProtected, Path: path,
		Msg: fmt.Sprintf("path %q is protected; pass allow_protected to override", path)}
}

func TooLarge(path string, size, limit int64) *Error {
	return &Error{Kind: KindTooLarge, Path: path,
		Msg: fmt.Sprintf("%q is %d bytes, exceeds limit of %d; use a ranged read", path, size, limit)}
}

func NotRead(path string) *Error {
	return &Error{Kind: KindNotRead, Path: path,
		Msg: fmt.Sprintf("%q has not been read in this session; read it first or supply expected_checksum", path)}
}

func OptimisticLockFailure(path string, expected, actual uint32) *Error {
	return &Error{Kind: KindOptimisticLockFailure, Path: path,
		ExpectedCRC: expected, ActualCRC: actual, HasCRCs: true,
		Msg: fmt.Sprintf("%q was modified since it was read (expected crc %08x, actual %08x); re-read before editing", path, expected, actual)}
}

func AddressingError(path string, start, end, lineCount int) *Error {
	return &Error{Kind: KindAddressingError, Path: path,
		StartLine: start, EndLine: end, FileLineCount: lineCount,
		Msg: fmt.Sprintf("range [%d,%d] is out of bounds for %q (%d lines)", start, end, path, lineCount)}
}

func ContentMismatch(path string, start, end int, expected, actual string) *Error {
	return &Error{Kind: KindContentMismatch, Path: path, StartLine: start, EndLine: end,
		ExpectedText: expected, ActualText: actual,
		Msg: fmt.Sprintf("content at [%d,%d] of %q does not match expected_content", start, end, path)}
}

func AmbiguousMatch(path string, count int) *Error {
	return &Error{Kind: KindAmbiguousMatch, Path: path, MatchCount: count,
		Msg: fmt.Sprintf("old_text matches %d times in %q; provide an operation list with line numbers", count, path)}
}

func ExternalChangeDetected(path string, prevCRC, curCRC uint32) *Error {
	return &Error{Kind: KindExternalChangeDetected, Path: path,
		ExpectedCRC: prevCRC, ActualCRC: curCRC, HasCRCs: true,
		Msg: fmt.Sprintf("%q changed outside the session (crc %08x -> %08x); recorded and continuing", path, prevCRC, curCRC)}
}

func StuckTransaction(reason string) *Error {
	return &Error{Kind: KindStuckTransaction,
		Msg: fmt.Sprintf("transaction marked stuck: %s; consider the git fallback", reason)}
}

func IOFailure(path string, err error) *Error {
	return &Error{Kind: KindIOFailure, Path: path, Wrapped: err,
		Msg: fmt.Sprintf("i/o failure on %q: %v", path, err)}
}

// As is a convenience wrapper around errors.As for this package's type,
// used by the Router to recover diagnostic fields when formatting a
// response.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			return e, true
		}
	}
	return nil, false
}

// Package errs wraps cockroachdb/errors and holds the sentinel errors the HTTP
// boundary maps to status codes.
package errs

import (
	cr "github.com/cockroachdb/errors"
)

var (
	ErrCaseNotFound     = cr.New("case type not found")
	ErrInvalidRequest   = cr.New("invalid request")
	ErrLedgerConflict   = cr.New("opening already recorded")
	ErrOpeningNotFound  = cr.New("opening not found")
	ErrChainUnavailable = cr.New("chain unavailable")
	ErrUnauthorized     = cr.New("unauthorized")
)

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...any) error {
	return cr.Newf(format, args...)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

// Mark tags err so that Is(err, mark) holds while keeping err's own message.
func Mark(err error, mark error) error {
	if err == nil {
		return mark
	}
	return cr.Mark(err, mark)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

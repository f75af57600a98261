package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by the ledger matches exactly one of these
// through errors.Is.
var (
	ErrUnauthorized      = errors.New("not authorized")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPersistence       = errors.New("persistence failure")
)

// Error carries the kind of a ledger failure together with the operation that
// produced it and a message meant for the caller.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the human-readable part of err without operation prefixes.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Op returns the operation recorded on err, or "" when it carries none.
func Op(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

func NotFound(op, what string, id int64) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf("%s %d not found", what, id)}
}

func Unauthorized(op, what string, id int64) error {
	return &Error{Kind: ErrUnauthorized, Op: op, Msg: fmt.Sprintf("%s %d does not belong to requester", what, id)}
}

func Invalid(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: msg}
}

func InsufficientFunds(op string, amount, remaining decimal.Decimal) error {
	return &Error{
		Kind: ErrInsufficientFunds,
		Op:   op,
		Msg:  fmt.Sprintf("amount %s exceeds remaining balance %s", amount.String(), remaining.String()),
	}
}

// Persistence wraps a storage failure. Errors that already carry a kind are
// returned unchanged so a NotFound raised inside a transaction stays NotFound.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: ErrPersistence, Op: op, Msg: "storage operation failed", Err: err}
}

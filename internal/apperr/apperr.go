// Package apperr defines the application error taxonomy surfaced by every
// service operation. Handlers translate kinds into HTTP statuses; storage
// internals never reach a client response.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindDuplicateProposal
	KindBookingAlreadyExists
	KindInsufficientFunds
	KindValidation
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Set only for KindInsufficientFunds.
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func InvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Msg: msg}
}

func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func DuplicateProposal() *Error {
	return &Error{Kind: KindDuplicateProposal, Msg: "an open proposal for this request already exists"}
}

func BookingAlreadyExists() *Error {
	return &Error{Kind: KindBookingAlreadyExists, Msg: "a booking for this request already exists"}
}

func InsufficientFunds(required, available decimal.Decimal) *Error {
	return &Error{
		Kind:      KindInsufficientFunds,
		Msg:       fmt.Sprintf("insufficient funds: required %s, available %s", required.StringFixed(2), available.StringFixed(2)),
		Required:  required,
		Available: available,
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// As unwraps err into an *Error, or nil when err is not one.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

func KindOf(err error) Kind {
	if ae := As(err); ae != nil {
		return ae.Kind
	}
	return KindInternal
}

func HTTPStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindInvalidState, KindDuplicateProposal, KindBookingAlreadyExists:
		return fiber.StatusConflict
	case KindInsufficientFunds:
		return fiber.StatusPaymentRequired
	case KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

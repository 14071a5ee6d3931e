package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorCode is the stable, client-facing reason a jackpot operation failed.
type ErrorCode string

const (
	CodePaused              ErrorCode = "PAUSED"
	CodeCapacityExceeded    ErrorCode = "CAPACITY_EXCEEDED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInvalidState        ErrorCode = "INVALID_STATE"
	CodeImmutableParameters ErrorCode = "IMMUTABLE_PARAMETERS"
	CodeAlreadyWithdrawn    ErrorCode = "ALREADY_WITHDRAWN"
	CodeConfigError         ErrorCode = "CONFIG_ERROR"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeForbidden           ErrorCode = "FORBIDDEN"
)

// JackpotError carries a code plus a human message. errors.Is matches on code alone,
// so callers can test against the sentinels below.
type JackpotError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *JackpotError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *JackpotError) Is(target error) bool {
	t, ok := target.(*JackpotError)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, format string, args ...any) *JackpotError {
	return &JackpotError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrPaused              = &JackpotError{Code: CodePaused, Message: "jackpot is not accepting ticket sales"}
	ErrCapacityExceeded    = &JackpotError{Code: CodeCapacityExceeded, Message: "not enough tickets left in this round"}
	ErrNotFound            = &JackpotError{Code: CodeNotFound, Message: "not found"}
	ErrInsufficientFunds   = &JackpotError{Code: CodeInsufficientFunds, Message: "insufficient balance"}
	ErrInvalidState        = &JackpotError{Code: CodeInvalidState, Message: "round is not in a valid state for this action"}
	ErrImmutableParameters = &JackpotError{Code: CodeImmutableParameters, Message: "round parameters cannot change after tickets are sold"}
	ErrAlreadyWithdrawn    = &JackpotError{Code: CodeAlreadyWithdrawn, Message: "surplus already withdrawn"}
	ErrConfig              = &JackpotError{Code: CodeConfigError, Message: "invalid round configuration"}
	ErrInvalidRequest      = &JackpotError{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrForbidden           = &JackpotError{Code: CodeForbidden, Message: "account may not take part in the jackpot"}
)

// CodeOf extracts the code from err, or "" for infrastructure errors.
func CodeOf(err error) ErrorCode {
	var je *JackpotError
	if errors.As(err, &je) {
		return je.Code
	}
	return ""
}

// HTTPStatus maps an engine error onto a response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidRequest, CodeConfigError, CodeInsufficientFunds, CodeCapacityExceeded:
		return fiber.StatusBadRequest
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidState, CodeImmutableParameters, CodeAlreadyWithdrawn:
		return fiber.StatusConflict
	case CodePaused:
		return fiber.StatusLocked
	default:
		return fiber.StatusInternalServerError
	}
}

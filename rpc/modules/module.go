package modules

import (
	"errors"
	"net/http"

	"fvest/native/vesting"
)

const (
	codeInvalidParams = -32602
	codeUnauthorized  = -32001
	codeServerError   = -32000
)

// ModuleError carries the RPC error surface for a failed module call.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// wrapError translates engine errors into the RPC taxonomy: authorization
// failures, caller-correctable rejections, and everything else as a server
// error.
func wrapError(err error) *ModuleError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vesting.ErrNotIssuer), errors.Is(err, vesting.ErrNotOwner):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, vesting.ErrNothingVested),
		errors.Is(err, vesting.ErrVestingNotElapsed),
		errors.Is(err, vesting.ErrPaused),
		errors.Is(err, vesting.ErrZeroAmount),
		errors.Is(err, vesting.ErrZeroAddress),
		errors.Is(err, vesting.ErrExceedsAvailable),
		errors.Is(err, vesting.ErrAlreadyBound),
		errors.Is(err, vesting.ErrLockBoxNotBound),
		errors.Is(err, vesting.ErrNoOp),
		errors.Is(err, vesting.ErrNotAllowed):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

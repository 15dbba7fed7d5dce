package rpc

import (
	"errors"
	"net/http"

	"chowfast/core"
	"chowfast/native/orders"
	"chowfast/native/token"
)

// ledgerError maps an error returned by the node to an HTTP status and a
// JSON-RPC code. The stable reason label travels in the error data.
func ledgerError(err error) (int, int, string, *ErrorData) {
	data := &ErrorData{Reason: core.ErrorReason(err), Detail: err.Error()}
	switch {
	case errors.Is(err, core.ErrUnknownMethod):
		return http.StatusNotFound, codeMethodNotFound, "method not found", data
	case errors.Is(err, core.ErrInvalidArgs),
		errors.Is(err, core.ErrChainIDMismatch),
		errors.Is(err, orders.ErrValidation),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidParams, "invalid params", data
	case errors.Is(err, core.ErrInvalidAuthorization),
		errors.Is(err, orders.ErrNotAuthorized),
		errors.Is(err, token.ErrNotAuthorized):
		return http.StatusForbidden, codeForbidden, "not authorized", data
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, token.ErrUnknownAsset):
		return http.StatusNotFound, codeNotFound, "not found", data
	case errors.Is(err, core.ErrInvalidNonce),
		errors.Is(err, orders.ErrAlreadyInitialized),
		errors.Is(err, orders.ErrNotInitialized),
		errors.Is(err, orders.ErrInvalidStateTransition),
		errors.Is(err, orders.ErrWindowExpired),
		errors.Is(err, orders.ErrNoFunds),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrBalanceOverflow):
		return http.StatusConflict, codeConflict, "rejected", data
	default:
		return http.StatusInternalServerError, codeServerError, "internal error", &ErrorData{Reason: data.Reason}
	}
}

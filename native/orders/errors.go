package orders

import "errors"

var (
	ErrAlreadyInitialized     = errors.New("orders: already initialized")
	ErrNotInitialized         = errors.New("orders: not initialized")
	ErrNotAuthorized          = errors.New("orders: not authorized")
	ErrValidation             = errors.New("orders: validation failed")
	ErrNotFound               = errors.New("orders: order not found")
	ErrInvalidStateTransition = errors.New("orders: invalid state transition")
	ErrWindowExpired          = errors.New("orders: cancellation window expired")
	ErrNoFunds                = errors.New("orders: no funds to withdraw")

	errNilState  = errors.New("orders engine: state not configured")
	errNilAuth   = errors.New("orders engine: authorizer not configured")
	errNilAssets = errors.New("orders engine: payment assets not configured")
)

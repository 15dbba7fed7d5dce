package core

import "errors"

var (
	// ErrChainIDMismatch is returned when an invocation targets another chain.
	ErrChainIDMismatch = errors.New("invocation: chain id mismatch")
	// ErrUnknownMethod is returned for methods the host does not dispatch.
	ErrUnknownMethod = errors.New("invocation: unknown method")
	// ErrInvalidArgs is returned when arguments fail to decode.
	ErrInvalidArgs = errors.New("invocation: invalid arguments")
	// ErrInvalidAuthorization is returned when a signature does not verify.
	ErrInvalidAuthorization = errors.New("invocation: invalid authorization")
	// ErrInvalidNonce is returned when an authorization nonce is not the
	// signer's next nonce.
	ErrInvalidNonce = errors.New("invocation: invalid nonce")

	// ErrParamsMismatch is returned when the configured contract parameters
	// differ from the ones pinned at genesis.
	ErrParamsMismatch = errors.New("core: contract params differ from ledger")
	// ErrEventLogBehind is returned when the notification log does not end
	// at the committed ledger height.
	ErrEventLogBehind = errors.New("core: event log out of step with ledger")
)

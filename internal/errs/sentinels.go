// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"strings"
)

// Common sentinels across client/backend layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates a missing or invalid bridge session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConnected indicates an operation needing a wallet address ran while disconnected.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrIdentityCreationFailed indicates the wallet rejected or failed the identity transaction.
	ErrIdentityCreationFailed = errors.New("identity creation failed")

	// ErrInsufficientFunds indicates the wallet could not pay the transaction fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPersistence indicates a backend CRUD call failed.
	ErrPersistence = errors.New("persistence failure")

	// ErrValidation indicates malformed input rejected before any network call.
	ErrValidation = errors.New("validation")
)

// FaucetURL is where testnet credits can be requested.
const FaucetURL = "https://faucet.aleo.org"

// UserMessage renders err as a short user-facing message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotConnected):
		return "Please connect your wallet first."
	case errors.Is(err, ErrInsufficientFunds):
		return "Transaction failed: insufficient credits. Your wallet needs testnet credits to pay fees; get some at " +
			FaucetURL + " and try again."
	case errors.Is(err, ErrIdentityCreationFailed):
		return "Could not create your identity. Please retry."
	case errors.Is(err, ErrValidation):
		return "Invalid input: " + strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	case errors.Is(err, ErrPersistence):
		return "Could not reach the server. Your action is kept locally for this session."
	default:
		return "Failed: " + err.Error()
	}
}

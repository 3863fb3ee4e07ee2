package services

import "errors"

// Error taxonomy shared by the escrow engine and the lifecycle controller.
// Handlers map these to HTTP statuses; nothing below is retried internally.
var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a request with no verified identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks an actor lacking the role or ownership for an action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing request, escrow account, or user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an action attempted from a state that does not
	// permit it. Never swallowed; always surfaced with a message.
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyProcessed is the settlement race loser: the escrow account
	// left held before this attempt could flip it.
	ErrAlreadyProcessed = errors.New("funds already processed")

	// ErrInsufficientFunds is returned when a platform-credit debit would
	// drive the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

package domain

import "errors"

var (
	// ErrNotFound: the referenced connection is no longer registered.
	// Always non-fatal; callers treat the triggering event as stale and drop it.
	ErrNotFound = errors.New("connection not found")

	// ErrAlreadyMatched: redundant match request from a paired connection.
	ErrAlreadyMatched = errors.New("already matched")

	// ErrNotPaired: message or call signal sent without an active pairing.
	ErrNotPaired = errors.New("not paired")

	// ErrInvalidTransition: call-signaling event inconsistent with the
	// current call state. Dropped, never propagated to the partner.
	ErrInvalidTransition = errors.New("invalid call transition")

	ErrUnknownRole     = errors.New("unknown role")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameTooLong = errors.New("username too long")
)

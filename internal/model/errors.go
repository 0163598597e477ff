package model

import "errors"

var (
	// Transport errors
	ErrTransport = errors.New("backend unreachable")

	// Authentication related errors
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrSessionTerminated     = errors.New("session terminated, sign in again")
	ErrIncompleteCredentials = errors.New("credential pair is incomplete")

	// Booking related errors
	ErrAlreadyEnrolled    = errors.New("already enrolled in this session")
	ErrInvalidTransition  = errors.New("invalid booking status transition")
	ErrForbiddenRole      = errors.New("action not permitted for this role")
	ErrSessionUnavailable = errors.New("session is not open for booking")
	ErrCancelDeclined     = errors.New("cancellation declined")

	// Provider related errors
	ErrProviderCancelled = errors.New("sign-in cancelled")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

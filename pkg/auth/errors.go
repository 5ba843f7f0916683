// Package auth provides local account management and session token
// authentication for the gateway.
package auth

import "errors"

var (
	// ErrNoToken is returned when no bearer token was supplied.
	ErrNoToken = errors.New("no token provided")

	// ErrInvalidToken is returned for malformed tokens or bad signatures.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCredentials is returned on login failure. It deliberately
	// does not distinguish an unknown email from a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an already-registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned when the password fails the length policy.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrInvalidEmail is returned when the email fails shape validation.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrUserInactive is returned when a deactivated account authenticates.
	ErrUserInactive = errors.New("user account is deactivated")
)

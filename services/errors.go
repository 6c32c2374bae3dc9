package services

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	// ErrSignupCodeInvalid is returned for unknown, expired or reused signup codes.
	ErrSignupCodeInvalid = errors.New("signup code is invalid or expired")
)

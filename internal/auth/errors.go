package auth

import "errors"

// Store errors. Decision failures are *autherr.Error values instead.
var (
	ErrNotFound      = errors.New("auth: record not found")
	ErrAlreadyExists = errors.New("auth: account already exists")
)

// ErrInvalidToken indicates the session token failed validation.
var ErrInvalidToken = errors.New("auth: invalid token")

package auth

import "errors"

var (
	ErrInvalidEmail      = errors.New("invalid email")
	ErrWeakPassword      = errors.New("weak password")
	ErrWrongPassword     = errors.New("wrong password")
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailInUse        = errors.New("email in use")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidName       = errors.New("invalid name")
)

package session

import (
	"context"
	"errors"
)

var (
	ErrInvalidEmail      = errors.New("invalid email")
	ErrWeakPassword      = errors.New("weak password")
	ErrWrongPassword     = errors.New("wrong password")
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailInUse        = errors.New("email in use")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidCredential = errors.New("invalid credential")
)

// AuthProvider is the opaque authentication backend. ObserveAuthState
// fires on every sign-in/out transition, including session restoration.
type AuthProvider interface {
	ObserveAuthState(fn func(identity *Identity))
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	UpdateProfile(ctx context.Context, displayName string) error
	SignOut(ctx context.Context) error
}

// AuthErrorMessage maps the provider's error taxonomy to the text shown
// on the auth form.
func AuthErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmailInUse):
		return "This email is already registered. Try signing in."
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 6 characters."
	case errors.Is(err, ErrUserNotFound):
		return "No account found with this email."
	case errors.Is(err, ErrWrongPassword):
		return "Incorrect password."
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid email or password."
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please try again later."
	default:
		return "An error occurred. Please try again."
	}
}

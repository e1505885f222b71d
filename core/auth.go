package core

import (
	"context"
	"errors"
)

// Principal is an authenticated identity. It lives for the duration of one
// login attempt or one request's security context and is never mutated.
type Principal struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// SecurityContext is the per-request outcome of the token verification stage.
// A missing Principal means the request is anonymous; TokenValid is false both
// when no token was presented and when one was presented but rejected.
type SecurityContext struct {
	Principal  *Principal
	TokenValid bool
}

var (
	// ErrMissingField is returned when username, password or role is blank.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords
	// so that login responses cannot be used to probe for valid usernames.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRoleMismatch is returned when the claimed role differs from the
	// account's stored role.
	ErrRoleMismatch = errors.New("role mismatch")
)

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(ctx context.Context, username, password, claimedRole string) (Principal, error)
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const lookupTimeout = 3 * time.Second

// RepositoryAuthService verifies credentials against the user repository.
type RepositoryAuthService struct {
	users UserRepository
}

func NewRepositoryAuthService(users UserRepository) *RepositoryAuthService {
	return &RepositoryAuthService{users: users}
}

// Authenticate checks username/password against the stored hash and confirms
// the claimed role matches the account's role (case-insensitively). On
// success the returned Principal carries the account's canonical role, not
// the claimed spelling.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password, claimedRole string) (Principal, error) {
	username = strings.TrimSpace(username)
	claimedRole = strings.TrimSpace(claimedRole)
	if username == "" || strings.TrimSpace(password) == "" || claimedRole == "" {
		return Principal{}, ErrMissingField
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("credential lookup for %q: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Principal{}, ErrInvalidCredentials
	}

	if !strings.EqualFold(u.Role, claimedRole) {
		return Principal{}, ErrRoleMismatch
	}

	role, ok := ParseRole(u.Role)
	if !ok {
		return Principal{}, fmt.Errorf("account %q has unknown role %q", u.Username, u.Role)
	}

	return Principal{Username: u.Username, Role: role}, nil
}

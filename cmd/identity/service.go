package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todolist/cmd/security/password"
)

// Service applies account rules on top of a Store.
type Service struct {
	store     Store
	passwords password.Config
	dummyHash string
}

func NewService(store Store, passwords password.Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	dummy, err := passwords.DummyHash()
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	return &Service{store: store, passwords: passwords, dummyHash: dummy}, nil
}

func (s *Service) PasswordPolicy() password.Policy { return s.passwords.Policy }

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, now time.Time, username, pw string) (User, error) {
	const op = "identity.Register"

	if err := ValidateUsername(op, username); err != nil {
		return User{}, err
	}
	hash, err := s.passwords.Hash(pw)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			return User{}, invalid(op, fmt.Sprintf("password must be at least %d characters", s.passwords.Policy.MinLength))
		case errors.Is(err, password.ErrPasswordTooLong):
			return User{}, invalid(op, "password is too long")
		case errors.Is(err, password.ErrWeakPassword):
			return User{}, invalid(op, "password is too weak")
		}
		return User{}, err
	}
	return s.store.CreateUser(ctx, CreateUserInput{Username: username, PasswordHash: hash, Now: now})
}

// Authenticate returns the user for valid credentials and
// ErrInvalidCredentials otherwise. Unknown usernames cost one hash
// verification like known ones.
func (s *Service) Authenticate(ctx context.Context, username, pw string) (User, error) {
	ua, err := s.store.GetUserAuthByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if IsNotFound(err) {
			_, _ = s.passwords.Verify(s.dummyHash, pw)
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	ok, err := s.passwords.Verify(ua.PasswordHash, pw)
	if err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}
	return ua.User, nil
}

// CheckUsername returns nil when username is valid and free, an
// ErrInvalidInput error when malformed and a ConflictError when taken.
func (s *Service) CheckUsername(ctx context.Context, username string) error {
	const op = "identity.CheckUsername"
	if err := ValidateUsername(op, username); err != nil {
		return err
	}
	exists, err := s.store.UsernameExists(ctx, NormalizeUsername(username))
	if err != nil {
		return err
	}
	if exists {
		return ConflictError{Op: op, Field: "username"}
	}
	return nil
}

func (s *Service) UserByID(ctx context.Context, id string) (User, error) {
	return s.store.GetUserByID(ctx, id)
}

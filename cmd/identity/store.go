package identity

import (
	"context"
	"time"
)

// User is a registered account. Username keeps the spelling chosen at
// registration; UsernameNorm is the uniqueness key.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	UsernameNorm string    `json:"username_norm"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserAuth is a User plus its stored password hash. It never leaves the
// identity and auth layers.
type UserAuth struct {
	User
	PasswordHash string
}

type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the user persistence boundary. Lookups take normalized usernames.
//
// Contract:
//   - CreateUser returns ConflictError{Field: "username"} for a taken name.
//   - Missing users are reported as NotFoundError.
//   - Any other error means the backing store is unavailable.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByUsername(ctx context.Context, usernameNorm string) (UserAuth, error)
	UsernameExists(ctx context.Context, usernameNorm string) (bool, error)
}

package cards

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing card and one owned by someone else.
	ErrNotFound = errors.New("card not found")

	// ErrStoreUnavailable wraps repository failures surfaced by Service.
	ErrStoreUnavailable = errors.New("card store unavailable")
)

// ValidationError rejects client input. Msg is user-facing.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid card: " + e.Msg
	}
	return fmt.Sprintf("invalid card %s: %s", e.Field, e.Msg)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

package identity

import (
	"strings"
	"unicode/utf8"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 20
)

// NormalizeUsername is the uniqueness key: trimmed and lower-cased.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername checks the display form of a username.
func ValidateUsername(op, username string) error {
	u := strings.TrimSpace(username)
	if u == "" {
		return invalid(op, "username is required")
	}
	if n := utf8.RuneCountInString(u); n < UsernameMinLen || n > UsernameMaxLen {
		return invalid(op, "username must be 3-20 characters")
	}
	return nil
}

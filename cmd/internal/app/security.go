package app

import (
	"errors"
	"fmt"

	"todolist/cmd/security/token"
)

const minTokenHMACKeyBytes = 32

// ValidateSecurityConfig fails startup when TODOLIST_REQUIRE_TOKEN_HMAC is
// set and session tokens would not be hashed with a strong HMAC key.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(minTokenHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("security policy: TODOLIST_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: TODOLIST_REQUIRE_TOKEN_HMAC=true but %s is shorter than %d bytes",
				token.HMACEnvKey, minTokenHMACKeyBytes)
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: TODOLIST_REQUIRE_TOKEN_HMAC=true but session token hashing is not in HMAC mode")
	}
	return nil
}

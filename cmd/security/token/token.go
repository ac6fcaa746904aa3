package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// HMACEnvKey names the env var holding the session token HMAC secret.
// #nosec G101 -- variable name, not a credential.
const HMACEnvKey = "TODOLIST_TOKEN_HMAC_KEY"

// MinSessionTokenBytes is the entropy floor for generated session tokens.
const MinSessionTokenBytes = 16

func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the trimmed key bytes, or ErrHMACKeyMissing /
// ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return []byte(raw), nil
}

// HMACEnabled reports whether a key is configured. It does not check length.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// HashSessionTokenHex is the storage key for a session token.
func HashSessionTokenHex(tok string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, []byte(key))
}

// NewSessionToken returns a base64url token of nBytes random bytes and its
// storage hash. nBytes below MinSessionTokenBytes is raised to it.
func NewSessionToken(nBytes int) (plain, hash string, err error) {
	if nBytes < MinSessionTokenBytes {
		nBytes = MinSessionTokenBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("session token: %w", err)
	}
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, HashSessionTokenHex(plain), nil
}

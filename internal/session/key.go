package session

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxKeyLen bounds session key length.
const MaxKeyLen = 128

// keyPattern allows alphanumeric, hyphen, underscore (covers UUIDs).
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateKey checks that a session key is usable as a store identifier.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("session key contains invalid UTF-8")
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("session key exceeds max length %d", MaxKeyLen)
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("session key contains invalid characters (must be alphanumeric, hyphen, underscore)")
	}
	return nil
}

// NewKey mints a fresh session key for callers that arrive without one.
func NewKey() string {
	return uuid.NewString()
}

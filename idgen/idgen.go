// Package idgen generates identifiers for imports, stored plan items and
// requests.
//
// IDs are UUIDv7 strings, optionally behind a short type prefix, so they
// sort by creation time in the store and in logs.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps gen and prepends prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Default generates bare UUIDv7 strings.
	Default Generator = UUIDv7()

	// Import, Item and Request tag IDs with their record kind.
	Import  = Prefixed("imp_", Default)
	Item    = Prefixed("itm_", Default)
	Request = Prefixed("req_", Default)
)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates an ID, with or without a type prefix, and returns it
// unchanged.
func Parse(s string) (string, error) {
	raw := s
	if i := strings.IndexByte(s, '_'); i >= 0 {
		raw = s[i+1:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return s, nil
}

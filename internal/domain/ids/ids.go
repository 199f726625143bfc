// Package ids generates and validates the identifiers used across the API.
// Rows are keyed by UUIDs minted in PostgreSQL; stored objects such as
// uploaded images are named by ULIDs so listings sort by creation time.
package ids

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/eventdesk/server/internal/fault"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

var (
	ErrInvalidULID = fault.New(fault.KindValidation, "invalid_id", "invalid ULID")
	ErrInvalidUUID = fault.New(fault.KindValidation, "invalid_id", "invalid identifier")
)

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID returns true when value is a valid ULID (case-insensitive Crockford Base32).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// NormalizeUUID parses value and returns its canonical lowercase form.
func NormalizeUUID(value string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", ErrInvalidUUID
	}
	return parsed.String(), nil
}

// IsUUID reports whether value parses as a UUID.
func IsUUID(value string) bool {
	_, err := NormalizeUUID(value)
	return err == nil
}

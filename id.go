package dag

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier in storage form: 32 lowercase hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ParseID accepts a UUID in canonical or 32-character hex form and returns
// the storage form.
func ParseID(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

// CanonicalID converts a storage identifier to canonical UUID text.
// Identifiers that do not parse are returned unchanged.
func CanonicalID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}

package hub

import "github.com/google/uuid"

// newID generates a globally unique identifier for a new entity.
func newID() string {
	return uuid.New().String()
}

// ValidID reports whether id is a syntactically valid UUIDv4 string.
// Callers use this to turn malformed identifiers into 404s before ever
// reaching storage, per section 6: "Malformed ids yield 404 (not 400) to
// prevent existence-probing via error shape."
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.Version() == 4 && parsed.String() == id
}

package lock

import "github.com/google/uuid"

// NewID returns a time-sortable UUIDv7 lease id.
//
// Panics if UUID generation fails (should never happen in practice).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

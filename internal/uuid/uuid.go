// Package uuid generates the identifiers used to tell apart concurrent
// holders of the repository's exclusive writer lock.
package uuid

import "github.com/google/uuid"

// NewString returns a new time-ordered (V7) UUID as a string. Panics on
// generation failure, which in practice only happens if the system's
// entropy source is broken.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}

package domain

import "github.com/google/uuid"

// NewID returns a new time-ordered 128-bit UUID rendered as its canonical
// string form, matching spec.md §3's id requirement and kurbisio's use of
// uuid.NewUUID() (version 1, time-ordered) throughout the registry and
// device-authorization code.
func NewID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		// NewUUID only fails if it cannot read a MAC address or the clock
		// sequence; fall back to a random v4 id rather than panicking.
		return uuid.New().String()
	}
	return id.String()
}

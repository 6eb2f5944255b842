package types

import "github.com/google/uuid"

// NewID returns a stable, time-sortable 128-bit identifier (UUIDv7),
// presented as its canonical string form. Every entity in the data model
// uses this constructor so that ids are lexically sortable by
// creation time without parsing.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system entropy source is broken;
		// fall back to a random v4 rather than panic mid-operation.
		return uuid.NewString()
	}
	return id.String()
}

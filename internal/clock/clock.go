package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Services take one so that the match
// window and event timestamps are testable.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, always in UTC.
type System struct{}

// Now returns the current UTC time truncated to milliseconds, the
// resolution the ledger stores.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// IDGenerator produces unique identifiers for new records.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it hyphenated.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

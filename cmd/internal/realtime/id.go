package realtime

import (
	"time"

	"todolist/cmd/identity/ids"
)

// NewSubscriberID returns a ULID so subscriber ids sort by connect time in logs.
func NewSubscriberID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

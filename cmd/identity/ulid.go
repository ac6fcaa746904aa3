package identity

import (
	"time"

	"todolist/cmd/identity/ids"
)

func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

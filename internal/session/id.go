package session

import "github.com/oklog/ulid/v2"

// NewID returns a lexically sortable unique test identifier.
func NewID() string {
	return ulid.Make().String()
}

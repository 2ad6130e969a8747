package model

import "github.com/oklog/ulid/v2"

// NewRunID generates a ULID identifying one process lifetime. Every persisted
// outcome carries the run id of the process that produced it.
func NewRunID() string {
	return ulid.Make().String()
}

// Package id provides identifiers for ledger rows.
package id

import (
	"github.com/google/uuid"
)

// ID identifies records, movements, outbox messages and audit entries.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse parses a textual UUID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil reports whether v is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

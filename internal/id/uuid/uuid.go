// Package uuid generates identifiers for deploy runs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 run identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a UUID7 string. Time-ordered ids keep runs sortable in log storage.
func (Generator) NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// MustRunID returns a run id, falling back to a random UUIDv4 when v7 generation fails.
func (g Generator) MustRunID() string {
	if id, err := g.NewRunID(); err == nil {
		return id
	}
	return uuid.NewString()
}

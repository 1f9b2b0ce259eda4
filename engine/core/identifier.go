package core

import "github.com/google/uuid"

// Identifier is a process-unique identity for engine objects whose pointer
// value is not a stable key, such as render passes participating in pipeline
// cache keys.
type Identifier string

// NewIdentifier returns a fresh unique identifier.
func NewIdentifier() Identifier {
	return Identifier(uuid.New().String())
}

func (id Identifier) String() string {
	return string(id)
}

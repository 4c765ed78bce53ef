package domain

import "errors"

var (
	// ErrValidation marks input that was rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrTypeReferenced is returned when deleting an entity type that is
	// still referenced by version rows.
	ErrTypeReferenced = errors.New("entity type is referenced by version rows")

	// ErrIntegrity marks a storage constraint violation that the per-key
	// lock should have made impossible. It indicates an out-of-band writer
	// or a bug and is never swallowed.
	ErrIntegrity = errors.New("storage integrity violation")
)

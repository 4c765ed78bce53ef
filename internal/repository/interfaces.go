package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/chronicle/internal/domain"
)

// ErrDuplicateCurrent is returned when inserting an open version loses a
// race against a concurrent writer that already opened one for the same
// logical key. The storage layer's partial unique index is the backstop
// that detects it.
var ErrDuplicateCurrent = errors.New("another current version exists for this key")

// Store opens atomic units of work over the temporal tables. All version
// transitions go through a transaction obtained here; the close-then-open
// sequence of an update commits or rolls back as one.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx bundles access to the temporal tables within one transaction.
type Tx interface {
	Entities() EntityStore
	Details() DetailStore
	Types() EntityTypeStore
	Audit() AuditWriter
}

// EntityStore persists entity version rows keyed by entity_uid.
type EntityStore interface {
	// Current returns the open version for the key, or nil when absent.
	Current(ctx context.Context, uid uuid.UUID) (*domain.Entity, error)
	// CurrentForUpdate is Current under an exclusive row lock, serializing
	// concurrent writers for the same key.
	CurrentForUpdate(ctx context.Context, uid uuid.UUID) (*domain.Entity, error)
	// CloseVersion conditionally closes the row (valid_to = changeTS,
	// is_current = false). Returns false when the row was already closed
	// by a concurrent writer.
	CloseVersion(ctx context.Context, rowID int64, changeTS time.Time) (bool, error)
	// InsertVersion opens a new version row. Returns ErrDuplicateCurrent
	// when an open version already exists for the key.
	InsertVersion(ctx context.Context, entity domain.Entity) (domain.Entity, error)
}

// DetailStore persists detail version rows keyed by (entity_uid, detail_code).
type DetailStore interface {
	Current(ctx context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error)
	CurrentForUpdate(ctx context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error)
	CloseVersion(ctx context.Context, rowID int64, changeTS time.Time) (bool, error)
	InsertVersion(ctx context.Context, detail domain.EntityDetail) (domain.EntityDetail, error)
}

// EntityTypeStore resolves entity type references during a transition.
type EntityTypeStore interface {
	// GetByCode returns the type for a stable code, or domain.ErrNotFound.
	GetByCode(ctx context.Context, code string) (domain.EntityType, error)
}

// AuditWriter appends audit records inside the transaction of the version
// transition they describe. Implementations never update or delete.
type AuditWriter interface {
	Record(ctx context.Context, record domain.AuditRecord) error
}

// EntityTypeRepository manages the entity type lookup outside of version
// transitions (seeding, listing, retirement).
type EntityTypeRepository interface {
	Upsert(ctx context.Context, entityType domain.EntityType) (domain.EntityType, error)
	GetByCode(ctx context.Context, code string) (domain.EntityType, error)
	List(ctx context.Context) ([]domain.EntityType, error)
	// Delete removes an unreferenced type. Returns domain.ErrTypeReferenced
	// when version rows still point at it.
	Delete(ctx context.Context, code string) error
}

// AuditReader exposes the append-only audit trail to downstream reporting.
type AuditReader interface {
	ListByEntity(ctx context.Context, uid uuid.UUID, limit int) ([]domain.AuditRecord, error)
}

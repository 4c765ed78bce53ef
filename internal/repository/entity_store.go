package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/chronicle/internal/domain"
)

// SQLSTATE codes distinguishing a lost race from a genuine integrity bug.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

const entityColumns = `e.id, e.entity_uid, e.display_name, t.code, e.valid_from, e.valid_to,
	e.is_current, e.hashdiff, e.created_at, e.updated_at`

// entityStore implements EntityStore over one transaction.
type entityStore struct {
	tx pgx.Tx
}

func (s *entityStore) Current(ctx context.Context, uid uuid.UUID) (*domain.Entity, error) {
	return s.current(ctx, uid, "")
}

func (s *entityStore) CurrentForUpdate(ctx context.Context, uid uuid.UUID) (*domain.Entity, error) {
	// Locks only the entity row; the type join is taken after the lock so
	// the lookup table is never locked.
	return s.current(ctx, uid, " FOR UPDATE OF e")
}

func (s *entityStore) current(ctx context.Context, uid uuid.UUID, lock string) (*domain.Entity, error) {
	query := `SELECT ` + entityColumns + `
		FROM entity e
		JOIN entity_type t ON t.id = e.entity_type_id
		WHERE e.entity_uid = $1 AND e.is_current` + lock

	row := s.tx.QueryRow(ctx, query, uid)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read current entity version: %w", err)
	}
	return &entity, nil
}

func (s *entityStore) CloseVersion(ctx context.Context, rowID int64, changeTS time.Time) (bool, error) {
	tag, err := s.tx.Exec(ctx,
		`UPDATE entity
		 SET valid_to = $2, is_current = FALSE, updated_at = now()
		 WHERE id = $1 AND is_current`,
		rowID, changeTS,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close entity version: %w", mapConstraintError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *entityStore) InsertVersion(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	row := s.tx.QueryRow(ctx,
		`INSERT INTO entity (entity_uid, display_name, entity_type_id, valid_from, valid_to, is_current, hashdiff)
		 SELECT $1, $2, t.id, $4, NULL, TRUE, $5
		 FROM entity_type t WHERE t.code = $3
		 RETURNING id, created_at, updated_at`,
		entity.EntityUID, entity.DisplayName, entity.TypeCode, entity.ValidFrom, entity.Hashdiff,
	)
	if err := row.Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("%w: unknown entity type %q", domain.ErrValidation, entity.TypeCode)
		}
		return domain.Entity{}, fmt.Errorf("failed to insert entity version: %w", mapConstraintError(err))
	}
	entity.ValidTo = nil
	entity.IsCurrent = true
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()
	return entity, nil
}

// mapConstraintError translates storage constraint failures into the
// repository's taxonomy: a duplicate current row is a lost race, an
// exclusion violation is a broken invariant.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicateCurrent, pgErr.ConstraintName)
	case pgExclusionViolation:
		return fmt.Errorf("%w: %s", domain.ErrIntegrity, pgErr.ConstraintName)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (domain.Entity, error) {
	var entity domain.Entity
	err := row.Scan(
		&entity.ID, &entity.EntityUID, &entity.DisplayName, &entity.TypeCode,
		&entity.ValidFrom, &entity.ValidTo, &entity.IsCurrent, &entity.Hashdiff,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return domain.Entity{}, err
	}
	entity.ValidFrom = entity.ValidFrom.UTC()
	if entity.ValidTo != nil {
		utc := entity.ValidTo.UTC()
		entity.ValidTo = &utc
	}
	entity.CreatedAt = entity.CreatedAt.UTC()
	entity.UpdatedAt = entity.UpdatedAt.UTC()
	return entity, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/chronicle/internal/domain"
)

// entityTypeStore resolves type codes inside a version transition.
type entityTypeStore struct {
	tx pgx.Tx
}

func (s *entityTypeStore) GetByCode(ctx context.Context, code string) (domain.EntityType, error) {
	row := s.tx.QueryRow(ctx,
		`SELECT id, code, name, is_active FROM entity_type WHERE code = $1`, code)
	return scanEntityType(row, code)
}

// entityTypeRepository manages the lookup table outside transitions.
type entityTypeRepository struct {
	pool *pgxpool.Pool
}

// NewEntityTypeRepository creates a pool-backed EntityTypeRepository.
func NewEntityTypeRepository(pool *pgxpool.Pool) EntityTypeRepository {
	return &entityTypeRepository{pool: pool}
}

func (r *entityTypeRepository) Upsert(ctx context.Context, entityType domain.EntityType) (domain.EntityType, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO entity_type (code, name, is_active)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active
		 RETURNING id, code, name, is_active`,
		entityType.Code, entityType.Name, entityType.IsActive,
	)
	seeded, err := scanEntityType(row, entityType.Code)
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("failed to upsert entity type: %w", err)
	}
	return seeded, nil
}

func (r *entityTypeRepository) GetByCode(ctx context.Context, code string) (domain.EntityType, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, code, name, is_active FROM entity_type WHERE code = $1`, code)
	return scanEntityType(row, code)
}

func (r *entityTypeRepository) List(ctx context.Context) ([]domain.EntityType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, is_active FROM entity_type ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	defer rows.Close()

	var types []domain.EntityType
	for rows.Next() {
		var t domain.EntityType
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (r *entityTypeRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entity_type WHERE code = $1`, code)
	if err != nil {
		var pgErr *pgconn.PgError
		// Foreign key restriction: version rows still reference the type.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: %s", domain.ErrTypeReferenced, code)
		}
		return fmt.Errorf("failed to delete entity type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entity type %q", domain.ErrNotFound, code)
	}
	return nil
}

func scanEntityType(row rowScanner, code string) (domain.EntityType, error) {
	var t domain.EntityType
	if err := row.Scan(&t.ID, &t.Code, &t.Name, &t.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityType{}, fmt.Errorf("%w: entity type %q", domain.ErrNotFound, code)
		}
		return domain.EntityType{}, fmt.Errorf("failed to read entity type: %w", err)
	}
	return t, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/chronicle/internal/domain"
)

const detailColumns = `id, entity_uid, detail_code, value_json, valid_from, valid_to,
	is_current, hashdiff, created_at, updated_at`

// detailStore implements DetailStore over one transaction.
type detailStore struct {
	tx pgx.Tx
}

func (s *detailStore) Current(ctx context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error) {
	return s.current(ctx, uid, code, "")
}

func (s *detailStore) CurrentForUpdate(ctx context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error) {
	return s.current(ctx, uid, code, " FOR UPDATE")
}

func (s *detailStore) current(ctx context.Context, uid uuid.UUID, code, lock string) (*domain.EntityDetail, error) {
	query := `SELECT ` + detailColumns + `
		FROM entity_detail
		WHERE entity_uid = $1 AND detail_code = $2 AND is_current` + lock

	row := s.tx.QueryRow(ctx, query, uid, code)
	detail, err := scanDetail(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read current detail version: %w", err)
	}
	return &detail, nil
}

func (s *detailStore) CloseVersion(ctx context.Context, rowID int64, changeTS time.Time) (bool, error) {
	tag, err := s.tx.Exec(ctx,
		`UPDATE entity_detail
		 SET valid_to = $2, is_current = FALSE, updated_at = now()
		 WHERE id = $1 AND is_current`,
		rowID, changeTS,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close detail version: %w", mapConstraintError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *detailStore) InsertVersion(ctx context.Context, detail domain.EntityDetail) (domain.EntityDetail, error) {
	valueJSON, err := json.Marshal(detail.Value)
	if err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to marshal detail value: %w", err)
	}

	row := s.tx.QueryRow(ctx,
		`INSERT INTO entity_detail (entity_uid, detail_code, value_json, valid_from, valid_to, is_current, hashdiff)
		 VALUES ($1, $2, $3, $4, NULL, TRUE, $5)
		 RETURNING id, created_at, updated_at`,
		detail.EntityUID, detail.DetailCode, valueJSON, detail.ValidFrom, detail.Hashdiff,
	)
	if err := row.Scan(&detail.ID, &detail.CreatedAt, &detail.UpdatedAt); err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to insert detail version: %w", mapConstraintError(err))
	}
	detail.ValidTo = nil
	detail.IsCurrent = true
	detail.CreatedAt = detail.CreatedAt.UTC()
	detail.UpdatedAt = detail.UpdatedAt.UTC()
	return detail, nil
}

func scanDetail(row rowScanner) (domain.EntityDetail, error) {
	var detail domain.EntityDetail
	var valueJSON []byte
	err := row.Scan(
		&detail.ID, &detail.EntityUID, &detail.DetailCode, &valueJSON,
		&detail.ValidFrom, &detail.ValidTo, &detail.IsCurrent, &detail.Hashdiff,
		&detail.CreatedAt, &detail.UpdatedAt,
	)
	if err != nil {
		return domain.EntityDetail{}, err
	}
	if err := json.Unmarshal(valueJSON, &detail.Value); err != nil {
		return domain.EntityDetail{}, fmt.Errorf("failed to decode detail value for %s::%s: %w",
			detail.EntityUID, detail.DetailCode, err)
	}
	detail.ValidFrom = detail.ValidFrom.UTC()
	if detail.ValidTo != nil {
		utc := detail.ValidTo.UTC()
		detail.ValidTo = &utc
	}
	detail.CreatedAt = detail.CreatedAt.UTC()
	detail.UpdatedAt = detail.UpdatedAt.UTC()
	return detail, nil
}

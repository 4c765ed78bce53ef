package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/chronicle/internal/domain"
)

// auditWriter appends audit records inside the transition's transaction.
type auditWriter struct {
	tx pgx.Tx
}

func (w *auditWriter) Record(ctx context.Context, record domain.AuditRecord) error {
	before, err := marshalSnapshot(record.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal audit before snapshot: %w", err)
	}
	after, err := marshalSnapshot(record.After)
	if err != nil {
		return fmt.Errorf("failed to marshal audit after snapshot: %w", err)
	}

	_, err = w.tx.Exec(ctx,
		`INSERT INTO audit_log (change_ts, actor, action, entity_uid, detail_code, before, after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ChangeTS, record.Actor, record.Action, record.EntityUID, record.DetailCode, before, after,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func marshalSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

// auditRepository exposes the trail read-only for downstream reporting.
type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a pool-backed AuditReader.
func NewAuditRepository(pool *pgxpool.Pool) AuditReader {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) ListByEntity(ctx context.Context, uid uuid.UUID, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, change_ts, actor, action, entity_uid, detail_code, before, after, created_at
		 FROM audit_log
		 WHERE entity_uid = $1
		 ORDER BY change_ts, id
		 LIMIT $2`,
		uid, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var record domain.AuditRecord
		var before, after []byte
		err := rows.Scan(
			&record.ID, &record.ChangeTS, &record.Actor, &record.Action,
			&record.EntityUID, &record.DetailCode, &before, &after, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if before != nil {
			if err := json.Unmarshal(before, &record.Before); err != nil {
				return nil, fmt.Errorf("failed to decode audit before snapshot: %w", err)
			}
		}
		if after != nil {
			if err := json.Unmarshal(after, &record.After); err != nil {
				return nil, fmt.Errorf("failed to decode audit after snapshot: %w", err)
			}
		}
		record.ChangeTS = record.ChangeTS.UTC()
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

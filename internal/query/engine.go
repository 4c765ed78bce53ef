package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/chronicle/internal/db"
	"github.com/rpattn/chronicle/internal/domain"
)

// Engine answers read-only temporal questions against the version tables.
// Validity intervals are the canonical source: the audit trail is never
// consulted, so a diff stays correct even when auditing is disabled.
type Engine struct {
	conn *db.Connection
}

func NewEngine(conn *db.Connection) *Engine {
	return &Engine{conn: conn}
}

// SnapshotAsOf reconstructs the state of all logical entities at the given
// instant: for each entity, the single version row whose [valid_from,
// valid_to) interval contains the instant, with the detail values effective
// at the same instant grouped by code.
func (e *Engine) SnapshotAsOf(ctx context.Context, asOf time.Time, filter domain.SnapshotFilter) ([]domain.EntitySnapshot, error) {
	asOf = asOf.UTC()

	query := `SELECT en.entity_uid, en.display_name, t.code, en.valid_from, en.valid_to
		FROM entity en
		JOIN entity_type t ON t.id = en.entity_type_id
		WHERE en.valid_from <= $1 AND (en.valid_to IS NULL OR en.valid_to > $1)`
	args := []any{asOf}

	if filter.NameContains != "" {
		args = append(args, "%"+filter.NameContains+"%")
		query += fmt.Sprintf(" AND en.display_name ILIKE $%d", len(args))
	}
	if filter.TypeCode != "" {
		args = append(args, filter.TypeCode)
		query += fmt.Sprintf(" AND t.code = $%d", len(args))
	}
	if filter.DetailCode != "" {
		args = append(args, filter.DetailCode)
		detailCond := fmt.Sprintf(`SELECT 1 FROM entity_detail d
			WHERE d.entity_uid = en.entity_uid AND d.detail_code = $%d
			AND d.valid_from <= $1 AND (d.valid_to IS NULL OR d.valid_to > $1)`, len(args))
		if filter.HasDetailValue {
			encoded, err := json.Marshal(filter.DetailValue)
			if err != nil {
				return nil, fmt.Errorf("failed to encode detail value filter: %w", err)
			}
			args = append(args, encoded)
			detailCond += fmt.Sprintf(" AND d.value_json = $%d::jsonb", len(args))
		}
		query += " AND EXISTS (" + detailCond + ")"
	}
	query += " ORDER BY en.entity_uid, en.valid_from"

	rows, err := e.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query as-of entities: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.EntitySnapshot
	var uids []uuid.UUID
	for rows.Next() {
		var s domain.EntitySnapshot
		if err := rows.Scan(&s.EntityUID, &s.DisplayName, &s.TypeCode, &s.ValidFrom, &s.ValidTo); err != nil {
			return nil, fmt.Errorf("failed to scan as-of entity: %w", err)
		}
		s.ValidFrom = s.ValidFrom.UTC()
		if s.ValidTo != nil {
			utc := s.ValidTo.UTC()
			s.ValidTo = &utc
		}
		s.Details = make(map[string]domain.SnapshotDetail)
		snapshots = append(snapshots, s)
		uids = append(uids, s.EntityUID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read as-of entities: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	if err := e.attachDetails(ctx, asOf, uids, snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (e *Engine) attachDetails(ctx context.Context, asOf time.Time, uids []uuid.UUID, snapshots []domain.EntitySnapshot) error {
	rows, err := e.conn.Pool.Query(ctx,
		`SELECT d.entity_uid, d.detail_code, d.value_json, d.valid_from, d.valid_to
		 FROM entity_detail d
		 WHERE d.entity_uid = ANY($1)
		 AND d.valid_from <= $2 AND (d.valid_to IS NULL OR d.valid_to > $2)
		 ORDER BY d.entity_uid, d.detail_code, d.valid_from`,
		uids, asOf,
	)
	if err != nil {
		return fmt.Errorf("failed to query as-of details: %w", err)
	}
	defer rows.Close()

	byUID := make(map[uuid.UUID]*domain.EntitySnapshot, len(snapshots))
	for i := range snapshots {
		byUID[snapshots[i].EntityUID] = &snapshots[i]
	}

	for rows.Next() {
		var uid uuid.UUID
		var detail domain.SnapshotDetail
		var raw []byte
		if err := rows.Scan(&uid, &detail.DetailCode, &raw, &detail.ValidFrom, &detail.ValidTo); err != nil {
			return fmt.Errorf("failed to scan as-of detail: %w", err)
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &detail.Value); err != nil {
				return fmt.Errorf("failed to decode detail value: %w", err)
			}
		}
		detail.ValidFrom = detail.ValidFrom.UTC()
		if detail.ValidTo != nil {
			utc := detail.ValidTo.UTC()
			detail.ValidTo = &utc
		}
		if s, ok := byUID[uid]; ok {
			s.Details[detail.DetailCode] = detail
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read as-of details: %w", err)
	}
	return nil
}

// Diff lists every version transition between two instants: OPEN events
// where valid_from falls in [from, to) and CLOSE events where valid_to falls
// in (from, to]. The asymmetric boundaries keep an event from appearing in
// two adjacent windows. Output order is instant, then kind, then op.
func (e *Engine) Diff(ctx context.Context, from, to time.Time) ([]domain.ChangeEvent, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: 'to' must be greater than 'from'", domain.ErrValidation)
	}
	from, to = from.UTC(), to.UTC()

	var events []domain.ChangeEvent

	collect := func(query string, scan func(pgx.Rows) (domain.ChangeEvent, error)) error {
		rows, err := e.conn.Pool.Query(ctx, query, from, to)
		if err != nil {
			return fmt.Errorf("failed to query changes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			event, err := scan(rows)
			if err != nil {
				return err
			}
			event.At = event.At.UTC()
			events = append(events, event)
		}
		return rows.Err()
	}

	err := collect(
		`SELECT en.entity_uid, en.valid_from, en.display_name, t.code
		 FROM entity en
		 JOIN entity_type t ON t.id = en.entity_type_id
		 WHERE en.valid_from >= $1 AND en.valid_from < $2`,
		func(rows pgx.Rows) (domain.ChangeEvent, error) {
			event := domain.ChangeEvent{Kind: domain.KindEntity, Op: domain.OpOpen}
			var displayName, typeCode string
			if err := rows.Scan(&event.EntityUID, &event.At, &displayName, &typeCode); err != nil {
				return event, fmt.Errorf("failed to scan entity open: %w", err)
			}
			event.After = map[string]any{"display_name": displayName, "entity_type": typeCode}
			return event, nil
		},
	)
	if err != nil {
		return nil, err
	}

	err = collect(
		`SELECT entity_uid, valid_to FROM entity
		 WHERE valid_to > $1 AND valid_to <= $2`,
		func(rows pgx.Rows) (domain.ChangeEvent, error) {
			event := domain.ChangeEvent{Kind: domain.KindEntity, Op: domain.OpClose}
			if err := rows.Scan(&event.EntityUID, &event.At); err != nil {
				return event, fmt.Errorf("failed to scan entity close: %w", err)
			}
			return event, nil
		},
	)
	if err != nil {
		return nil, err
	}

	err = collect(
		`SELECT entity_uid, detail_code, valid_from, value_json FROM entity_detail
		 WHERE valid_from >= $1 AND valid_from < $2`,
		func(rows pgx.Rows) (domain.ChangeEvent, error) {
			event := domain.ChangeEvent{Kind: domain.KindDetail, Op: domain.OpOpen}
			var code string
			var raw []byte
			if err := rows.Scan(&event.EntityUID, &code, &event.At, &raw); err != nil {
				return event, fmt.Errorf("failed to scan detail open: %w", err)
			}
			event.DetailCode = &code
			var value any
			if raw != nil {
				if err := json.Unmarshal(raw, &value); err != nil {
					return event, fmt.Errorf("failed to decode detail value: %w", err)
				}
			}
			event.After = map[string]any{"value_json": value}
			return event, nil
		},
	)
	if err != nil {
		return nil, err
	}

	err = collect(
		`SELECT entity_uid, detail_code, valid_to FROM entity_detail
		 WHERE valid_to > $1 AND valid_to <= $2`,
		func(rows pgx.Rows) (domain.ChangeEvent, error) {
			event := domain.ChangeEvent{Kind: domain.KindDetail, Op: domain.OpClose}
			var code string
			if err := rows.Scan(&event.EntityUID, &code, &event.At); err != nil {
				return event, fmt.Errorf("failed to scan detail close: %w", err)
			}
			event.DetailCode = &code
			return event, nil
		},
	)
	if err != nil {
		return nil, err
	}

	sortEvents(events)
	return events, nil
}

func sortEvents(events []domain.ChangeEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Less(events[j]) })
}

// History returns every version row ever recorded for one logical entity:
// entity versions ordered by valid_from and detail versions ordered by
// (detail_code, valid_from).
func (e *Engine) History(ctx context.Context, uid uuid.UUID) (domain.History, error) {
	history := domain.History{EntityUID: uid}

	rows, err := e.conn.Pool.Query(ctx,
		`SELECT en.id, en.entity_uid, en.display_name, t.code, en.valid_from, en.valid_to,
			en.is_current, en.hashdiff, en.created_at, en.updated_at
		 FROM entity en
		 JOIN entity_type t ON t.id = en.entity_type_id
		 WHERE en.entity_uid = $1
		 ORDER BY en.valid_from`,
		uid,
	)
	if err != nil {
		return history, fmt.Errorf("failed to query entity history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Entity
		err := rows.Scan(&v.ID, &v.EntityUID, &v.DisplayName, &v.TypeCode, &v.ValidFrom, &v.ValidTo,
			&v.IsCurrent, &v.Hashdiff, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return history, fmt.Errorf("failed to scan entity version: %w", err)
		}
		normalizeEntityTimes(&v)
		history.Versions = append(history.Versions, v)
	}
	if err := rows.Err(); err != nil {
		return history, fmt.Errorf("failed to read entity history: %w", err)
	}
	if len(history.Versions) == 0 {
		return history, fmt.Errorf("%w: entity %s has no versions", domain.ErrNotFound, uid)
	}

	detailRows, err := e.conn.Pool.Query(ctx,
		`SELECT id, entity_uid, detail_code, value_json, valid_from, valid_to,
			is_current, hashdiff, created_at, updated_at
		 FROM entity_detail
		 WHERE entity_uid = $1
		 ORDER BY detail_code, valid_from`,
		uid,
	)
	if err != nil {
		return history, fmt.Errorf("failed to query detail history: %w", err)
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var v domain.EntityDetail
		var raw []byte
		err := detailRows.Scan(&v.ID, &v.EntityUID, &v.DetailCode, &raw, &v.ValidFrom, &v.ValidTo,
			&v.IsCurrent, &v.Hashdiff, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return history, fmt.Errorf("failed to scan detail version: %w", err)
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &v.Value); err != nil {
				return history, fmt.Errorf("failed to decode detail value: %w", err)
			}
		}
		v.ValidFrom = v.ValidFrom.UTC()
		if v.ValidTo != nil {
			utc := v.ValidTo.UTC()
			v.ValidTo = &utc
		}
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = v.UpdatedAt.UTC()
		history.Details = append(history.Details, v)
	}
	if err := detailRows.Err(); err != nil {
		return history, fmt.Errorf("failed to read detail history: %w", err)
	}
	return history, nil
}

func normalizeEntityTimes(v *domain.Entity) {
	v.ValidFrom = v.ValidFrom.UTC()
	if v.ValidTo != nil {
		utc := v.ValidTo.UTC()
		v.ValidTo = &utc
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
}

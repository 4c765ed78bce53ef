// Package scd2 implements the versioning state machine for the temporal
// store. Every business-relevant change closes the open version of a
// logical key and opens a new one inside a single transaction; unchanged
// payloads are detected by fingerprint and become no-ops.
package scd2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/chronicle/internal/domain"
	"github.com/rpattn/chronicle/internal/hashdiff"
	"github.com/rpattn/chronicle/internal/logging"
	"github.com/rpattn/chronicle/internal/repository"
)

// Status reports what an upsert or close actually did.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusNoop    Status = "noop"
	StatusClosed  Status = "closed"
)

// Result describes the outcome of one upsert/close call. ValidFrom is the
// effective start of the open version after the call (nil when the key has
// no open version). Hashdiff is the fingerprint now in effect, which on a
// lost race belongs to the concurrent writer that won.
type Result struct {
	Status     Status     `json:"status"`
	EntityUID  uuid.UUID  `json:"entity_uid"`
	DetailCode string     `json:"detail_code,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	Hashdiff   string     `json:"hashdiff,omitempty"`
}

// EntityInput is the business payload of an entity upsert.
type EntityInput struct {
	EntityUID   uuid.UUID
	DisplayName string
	TypeCode    string
	ChangeTS    *time.Time
	Actor       string
}

// DetailInput is the business payload of a detail upsert.
type DetailInput struct {
	EntityUID  uuid.UUID
	DetailCode string
	Value      any
	ChangeTS   *time.Time
	Actor      string
}

// AuditSink receives one record per version transition, inside the same
// transaction as the transition itself. It is an optional collaborator:
// the state machine succeeds with a no-op sink.
type AuditSink interface {
	Record(ctx context.Context, tx repository.Tx, record domain.AuditRecord) error
}

// NopAuditSink discards all records.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, repository.Tx, domain.AuditRecord) error { return nil }

// StoreAuditSink appends records through the transaction's audit table.
type StoreAuditSink struct{}

func (StoreAuditSink) Record(ctx context.Context, tx repository.Tx, record domain.AuditRecord) error {
	return tx.Audit().Record(ctx, record)
}

// errLostRace aborts the losing transaction of a concurrent open; it never
// escapes the service.
var errLostRace = errors.New("lost race to concurrent writer")

// Service is the only writer path of the temporal store.
type Service struct {
	store  repository.Store
	audit  AuditSink
	logger *logging.Logger
}

// NewService wires the state machine to a store and an audit sink. A nil
// sink disables auditing; a nil logger discards logs.
func NewService(store repository.Store, audit AuditSink, logger *logging.Logger) *Service {
	if audit == nil {
		audit = NopAuditSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, audit: audit, logger: logger}
}

// canonicalTS normalizes a change timestamp: UTC, microsecond precision
// (timestamptz resolution, so a valid_to read back from storage compares
// equal to the change_ts that wrote it). A nil timestamp means now.
func canonicalTS(ts *time.Time) time.Time {
	if ts == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return ts.UTC().Truncate(time.Microsecond)
}

// UpsertEntity applies the SCD2 state machine to a logical entity:
// absent keys open a first version (created), identical fingerprints leave
// state untouched (noop), changed fingerprints close the open version at
// the change timestamp and open a new one (updated). Losing a race against
// an equivalent concurrent writer degrades to noop.
func (s *Service) UpsertEntity(ctx context.Context, in EntityInput) (Result, error) {
	if strings.TrimSpace(in.DisplayName) == "" {
		return Result{}, fmt.Errorf("%w: display_name is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.TypeCode) == "" {
		return Result{}, fmt.Errorf("%w: entity_type is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Actor) == "" {
		return Result{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if in.EntityUID == uuid.Nil {
		in.EntityUID = uuid.New()
	}

	changeTS := canonicalTS(in.ChangeTS)
	newHash := hashdiff.EntityFingerprint(in.DisplayName, in.TypeCode)

	var result Result
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		entityType, err := tx.Types().GetByCode(ctx, in.TypeCode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: unknown entity type %q", domain.ErrValidation, in.TypeCode)
			}
			return err
		}

		current, err := tx.Entities().CurrentForUpdate(ctx, in.EntityUID)
		if err != nil {
			return err
		}

		if current != nil && current.Hashdiff == newHash {
			result = Result{
				Status:    StatusNoop,
				EntityUID: in.EntityUID,
				ValidFrom: &current.ValidFrom,
				Hashdiff:  current.Hashdiff,
			}
			return nil
		}

		if !entityType.IsActive {
			return fmt.Errorf("%w: entity type %q is inactive", domain.ErrValidation, in.TypeCode)
		}

		status := StatusCreated
		if current != nil {
			closed, err := tx.Entities().CloseVersion(ctx, current.ID, changeTS)
			if err != nil {
				return err
			}
			if !closed {
				// A concurrent writer closed this row first.
				return errLostRace
			}
			err = s.audit.Record(ctx, tx, domain.AuditRecord{
				ChangeTS:  changeTS,
				Actor:     in.Actor,
				Action:    domain.ActionCloseEntity,
				EntityUID: in.EntityUID,
				Before: map[string]any{
					"display_name": current.DisplayName,
					"entity_type":  current.TypeCode,
				},
			})
			if err != nil {
				return err
			}
			status = StatusUpdated
		}

		opened, err := tx.Entities().InsertVersion(ctx, domain.Entity{
			EntityUID:   in.EntityUID,
			DisplayName: in.DisplayName,
			TypeCode:    in.TypeCode,
			ValidFrom:   changeTS,
			Hashdiff:    newHash,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateCurrent) {
				return errLostRace
			}
			return err
		}

		err = s.audit.Record(ctx, tx, domain.AuditRecord{
			ChangeTS:  changeTS,
			Actor:     in.Actor,
			Action:    domain.ActionOpenEntity,
			EntityUID: in.EntityUID,
			After: map[string]any{
				"display_name": in.DisplayName,
				"entity_type":  in.TypeCode,
			},
		})
		if err != nil {
			return err
		}

		result = Result{
			Status:    status,
			EntityUID: in.EntityUID,
			ValidFrom: &opened.ValidFrom,
			Hashdiff:  opened.Hashdiff,
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return s.entityRaceNoop(ctx, in.EntityUID)
	}
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("entity upsert",
		"entity_uid", in.EntityUID, "status", result.Status, "change_ts", changeTS, "actor", in.Actor)
	return result, nil
}

// CloseEntity closes the open version of a logical entity. Absent or
// already closed keys are no-ops.
func (s *Service) CloseEntity(ctx context.Context, uid uuid.UUID, changeTS *time.Time, actor string) (Result, error) {
	if strings.TrimSpace(actor) == "" {
		return Result{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	ts := canonicalTS(changeTS)

	var result Result
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Entities().CurrentForUpdate(ctx, uid)
		if err != nil {
			return err
		}
		if current == nil {
			result = Result{Status: StatusNoop, EntityUID: uid}
			return nil
		}

		closed, err := tx.Entities().CloseVersion(ctx, current.ID, ts)
		if err != nil {
			return err
		}
		if !closed {
			result = Result{Status: StatusNoop, EntityUID: uid}
			return nil
		}

		err = s.audit.Record(ctx, tx, domain.AuditRecord{
			ChangeTS:  ts,
			Actor:     actor,
			Action:    domain.ActionCloseEntity,
			EntityUID: uid,
			Before: map[string]any{
				"display_name": current.DisplayName,
				"entity_type":  current.TypeCode,
			},
		})
		if err != nil {
			return err
		}

		result = Result{Status: StatusClosed, EntityUID: uid, ValidFrom: &current.ValidFrom}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("entity close", "entity_uid", uid, "status", result.Status, "change_ts", ts, "actor", actor)
	return result, nil
}

// UpsertDetail applies the SCD2 state machine to a detail keyed by
// (entity_uid, detail_code).
func (s *Service) UpsertDetail(ctx context.Context, in DetailInput) (Result, error) {
	if in.EntityUID == uuid.Nil {
		return Result{}, fmt.Errorf("%w: entity_uid is required", domain.ErrValidation)
	}
	in.DetailCode = strings.TrimSpace(in.DetailCode)
	if in.DetailCode == "" {
		return Result{}, fmt.Errorf("%w: detail_code is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Actor) == "" {
		return Result{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	newHash, err := hashdiff.DetailFingerprint(in.Value)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	changeTS := canonicalTS(in.ChangeTS)

	var result Result
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Details().CurrentForUpdate(ctx, in.EntityUID, in.DetailCode)
		if err != nil {
			return err
		}

		if current != nil && current.Hashdiff == newHash {
			result = Result{
				Status:     StatusNoop,
				EntityUID:  in.EntityUID,
				DetailCode: in.DetailCode,
				ValidFrom:  &current.ValidFrom,
				Hashdiff:   current.Hashdiff,
			}
			return nil
		}

		status := StatusCreated
		if current != nil {
			closed, err := tx.Details().CloseVersion(ctx, current.ID, changeTS)
			if err != nil {
				return err
			}
			if !closed {
				return errLostRace
			}
			err = s.audit.Record(ctx, tx, domain.AuditRecord{
				ChangeTS:   changeTS,
				Actor:      in.Actor,
				Action:     domain.ActionCloseDetail,
				EntityUID:  in.EntityUID,
				DetailCode: &in.DetailCode,
				Before:     map[string]any{"value_json": current.Value},
			})
			if err != nil {
				return err
			}
			status = StatusUpdated
		}

		opened, err := tx.Details().InsertVersion(ctx, domain.EntityDetail{
			EntityUID:  in.EntityUID,
			DetailCode: in.DetailCode,
			Value:      in.Value,
			ValidFrom:  changeTS,
			Hashdiff:   newHash,
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateCurrent) {
				return errLostRace
			}
			return err
		}

		err = s.audit.Record(ctx, tx, domain.AuditRecord{
			ChangeTS:   changeTS,
			Actor:      in.Actor,
			Action:     domain.ActionOpenDetail,
			EntityUID:  in.EntityUID,
			DetailCode: &in.DetailCode,
			After:      map[string]any{"value_json": in.Value},
		})
		if err != nil {
			return err
		}

		result = Result{
			Status:     status,
			EntityUID:  in.EntityUID,
			DetailCode: in.DetailCode,
			ValidFrom:  &opened.ValidFrom,
			Hashdiff:   opened.Hashdiff,
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return s.detailRaceNoop(ctx, in.EntityUID, in.DetailCode)
	}
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("detail upsert",
		"entity_uid", in.EntityUID, "detail_code", in.DetailCode, "status", result.Status,
		"change_ts", changeTS, "actor", in.Actor)
	return result, nil
}

// CloseDetail closes the open version of a detail key. Absent or already
// closed keys are no-ops.
func (s *Service) CloseDetail(ctx context.Context, uid uuid.UUID, code string, changeTS *time.Time, actor string) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, fmt.Errorf("%w: detail_code is required", domain.ErrValidation)
	}
	if strings.TrimSpace(actor) == "" {
		return Result{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	ts := canonicalTS(changeTS)

	var result Result
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Details().CurrentForUpdate(ctx, uid, code)
		if err != nil {
			return err
		}
		if current == nil {
			result = Result{Status: StatusNoop, EntityUID: uid, DetailCode: code}
			return nil
		}

		closed, err := tx.Details().CloseVersion(ctx, current.ID, ts)
		if err != nil {
			return err
		}
		if !closed {
			result = Result{Status: StatusNoop, EntityUID: uid, DetailCode: code}
			return nil
		}

		err = s.audit.Record(ctx, tx, domain.AuditRecord{
			ChangeTS:   ts,
			Actor:      actor,
			Action:     domain.ActionCloseDetail,
			EntityUID:  uid,
			DetailCode: &code,
			Before:     map[string]any{"value_json": current.Value},
		})
		if err != nil {
			return err
		}

		result = Result{Status: StatusClosed, EntityUID: uid, DetailCode: code, ValidFrom: &current.ValidFrom}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("detail close",
		"entity_uid", uid, "detail_code", code, "status", result.Status, "change_ts", ts, "actor", actor)
	return result, nil
}

// entityRaceNoop reports the state the winning writer left behind. The
// losing transaction already rolled back, so this is a fresh read.
func (s *Service) entityRaceNoop(ctx context.Context, uid uuid.UUID) (Result, error) {
	result := Result{Status: StatusNoop, EntityUID: uid}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Entities().Current(ctx, uid)
		if err != nil {
			return err
		}
		if current != nil {
			result.ValidFrom = &current.ValidFrom
			result.Hashdiff = current.Hashdiff
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("entity upsert lost race", "entity_uid", uid)
	return result, nil
}

func (s *Service) detailRaceNoop(ctx context.Context, uid uuid.UUID, code string) (Result, error) {
	result := Result{Status: StatusNoop, EntityUID: uid, DetailCode: code}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.Details().Current(ctx, uid, code)
		if err != nil {
			return err
		}
		if current != nil {
			result.ValidFrom = &current.ValidFrom
			result.Hashdiff = current.Hashdiff
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("detail upsert lost race", "entity_uid", uid, "detail_code", code)
	return result, nil
}

package scd2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/chronicle/internal/domain"
	"github.com/rpattn/chronicle/internal/repository"
)

// memStore is an in-memory repository.Store with the same observable
// behavior as the Postgres implementation: serialized transactions,
// rollback on error, a single-current uniqueness check on insert, and an
// overlap check standing in for the exclusion constraint.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// Test hooks simulating a concurrent writer winning the race.
	forceCloseMiss     bool
	forceDuplicateOpen bool
}

type memState struct {
	entities []domain.Entity
	details  []domain.EntityDetail
	types    map[string]domain.EntityType
	audit    []domain.AuditRecord
	nextID   int64
}

func newMemStore(types ...domain.EntityType) *memStore {
	byCode := make(map[string]domain.EntityType, len(types))
	for i, t := range types {
		t.ID = int64(i + 1)
		byCode[t.Code] = t
	}
	return &memStore{state: &memState{types: byCode, nextID: 1}}
}

func (s *memState) clone() *memState {
	next := &memState{
		entities: append([]domain.Entity(nil), s.entities...),
		details:  append([]domain.EntityDetail(nil), s.details...),
		types:    s.types,
		audit:    append([]domain.AuditRecord(nil), s.audit...),
		nextID:   s.nextID,
	}
	return next
}

func (s *memStore) WithTx(_ context.Context, fn func(repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	tx := &memTx{store: s, state: working}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = working
	return nil
}

// snapshot returns copies of all version rows for assertions.
func (s *memStore) snapshot() ([]domain.Entity, []domain.EntityDetail, []domain.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	return st.entities, st.details, st.audit
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) Entities() repository.EntityStore  { return &memEntities{tx: t} }
func (t *memTx) Details() repository.DetailStore   { return &memDetails{tx: t} }
func (t *memTx) Types() repository.EntityTypeStore { return &memTypes{tx: t} }
func (t *memTx) Audit() repository.AuditWriter     { return &memAudit{tx: t} }

type memEntities struct {
	tx *memTx
}

func (m *memEntities) Current(_ context.Context, uid uuid.UUID) (*domain.Entity, error) {
	for i := range m.tx.state.entities {
		e := m.tx.state.entities[i]
		if e.EntityUID == uid && e.IsCurrent {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memEntities) CurrentForUpdate(ctx context.Context, uid uuid.UUID) (*domain.Entity, error) {
	return m.Current(ctx, uid)
}

func (m *memEntities) CloseVersion(_ context.Context, rowID int64, changeTS time.Time) (bool, error) {
	if m.tx.store.forceCloseMiss {
		m.tx.store.forceCloseMiss = false
		return false, nil
	}
	for i := range m.tx.state.entities {
		e := &m.tx.state.entities[i]
		if e.ID == rowID && e.IsCurrent {
			ts := changeTS
			e.ValidTo = &ts
			e.IsCurrent = false
			e.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (m *memEntities) InsertVersion(_ context.Context, entity domain.Entity) (domain.Entity, error) {
	if m.tx.store.forceDuplicateOpen {
		m.tx.store.forceDuplicateOpen = false
		return domain.Entity{}, fmt.Errorf("insert entity: %w", repository.ErrDuplicateCurrent)
	}
	for _, existing := range m.tx.state.entities {
		if existing.EntityUID != entity.EntityUID {
			continue
		}
		if existing.IsCurrent {
			return domain.Entity{}, fmt.Errorf("insert entity: %w", repository.ErrDuplicateCurrent)
		}
		if overlaps(entity.ValidFrom, nil, existing.ValidFrom, existing.ValidTo) {
			return domain.Entity{}, fmt.Errorf("insert entity: %w", domain.ErrIntegrity)
		}
	}

	entity.ID = m.tx.state.nextID
	m.tx.state.nextID++
	entity.IsCurrent = true
	entity.ValidTo = nil
	now := time.Now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now
	m.tx.state.entities = append(m.tx.state.entities, entity)
	return entity, nil
}

type memDetails struct {
	tx *memTx
}

func (m *memDetails) Current(_ context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error) {
	for i := range m.tx.state.details {
		d := m.tx.state.details[i]
		if d.EntityUID == uid && d.DetailCode == code && d.IsCurrent {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *memDetails) CurrentForUpdate(ctx context.Context, uid uuid.UUID, code string) (*domain.EntityDetail, error) {
	return m.Current(ctx, uid, code)
}

func (m *memDetails) CloseVersion(_ context.Context, rowID int64, changeTS time.Time) (bool, error) {
	if m.tx.store.forceCloseMiss {
		m.tx.store.forceCloseMiss = false
		return false, nil
	}
	for i := range m.tx.state.details {
		d := &m.tx.state.details[i]
		if d.ID == rowID && d.IsCurrent {
			ts := changeTS
			d.ValidTo = &ts
			d.IsCurrent = false
			d.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (m *memDetails) InsertVersion(_ context.Context, detail domain.EntityDetail) (domain.EntityDetail, error) {
	if m.tx.store.forceDuplicateOpen {
		m.tx.store.forceDuplicateOpen = false
		return domain.EntityDetail{}, fmt.Errorf("insert detail: %w", repository.ErrDuplicateCurrent)
	}
	for _, existing := range m.tx.state.details {
		if existing.EntityUID != detail.EntityUID || existing.DetailCode != detail.DetailCode {
			continue
		}
		if existing.IsCurrent {
			return domain.EntityDetail{}, fmt.Errorf("insert detail: %w", repository.ErrDuplicateCurrent)
		}
		if overlaps(detail.ValidFrom, nil, existing.ValidFrom, existing.ValidTo) {
			return domain.EntityDetail{}, fmt.Errorf("insert detail: %w", domain.ErrIntegrity)
		}
	}

	detail.ID = m.tx.state.nextID
	m.tx.state.nextID++
	detail.IsCurrent = true
	detail.ValidTo = nil
	now := time.Now().UTC()
	detail.CreatedAt = now
	detail.UpdatedAt = now
	m.tx.state.details = append(m.tx.state.details, detail)
	return detail, nil
}

type memTypes struct {
	tx *memTx
}

func (m *memTypes) GetByCode(_ context.Context, code string) (domain.EntityType, error) {
	t, ok := m.tx.state.types[code]
	if !ok {
		return domain.EntityType{}, fmt.Errorf("%w: entity type %q", domain.ErrNotFound, code)
	}
	return t, nil
}

type memAudit struct {
	tx *memTx
}

func (m *memAudit) Record(_ context.Context, record domain.AuditRecord) error {
	record.ID = m.tx.state.nextID
	m.tx.state.nextID++
	record.CreatedAt = time.Now().UTC()
	m.tx.state.audit = append(m.tx.state.audit, record)
	return nil
}

// overlaps reports whether [aFrom, aTo) and [bFrom, bTo) intersect, with a
// nil end meaning open-ended. Touching endpoints do not overlap.
func overlaps(aFrom time.Time, aTo *time.Time, bFrom time.Time, bTo *time.Time) bool {
	aBeforeB := aTo != nil && !aTo.After(bFrom)
	bBeforeA := bTo != nil && !bTo.After(aFrom)
	return !aBeforeB && !bBeforeA
}

package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/chronicle/internal/domain"
)

func TestDiffRejectsEmptyOrInvertedRange(t *testing.T) {
	engine := NewEngine(nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, to := range []time.Time{at, at.Add(-time.Hour)} {
		_, err := engine.Diff(context.Background(), at, to)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Diff(%v, %v) error = %v, want validation failure", at, to, err)
		}
	}
}

func TestSortEventsOrdering(t *testing.T) {
	uid := uuid.New()
	code := "email"
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	events := []domain.ChangeEvent{
		{Kind: domain.KindDetail, Op: domain.OpOpen, EntityUID: uid, DetailCode: &code, At: late},
		{Kind: domain.KindDetail, Op: domain.OpClose, EntityUID: uid, DetailCode: &code, At: late},
		{Kind: domain.KindEntity, Op: domain.OpOpen, EntityUID: uid, At: late},
		{Kind: domain.KindEntity, Op: domain.OpOpen, EntityUID: uid, At: early},
	}
	sortEvents(events)

	got := make([]string, len(events))
	for i, e := range events {
		got[i] = e.At.Format("15:04") + " " + e.Kind + " " + e.Op
	}
	want := []string{
		"00:00 entity OPEN",
		"01:00 entity OPEN",
		"01:00 detail CLOSE",
		"01:00 detail OPEN",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
}

package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEntityVersionText(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	e := Entity{
		EntityUID:   uuid.New(),
		DisplayName: "Alice",
		TypeCode:    "PERSON",
		ValidFrom:   from,
		ValidTo:     &to,
	}

	lines := e.VersionText()
	want := []string{
		"DisplayName: Alice",
		"EntityType: PERSON",
		"ValidFrom: 2024-01-01T00:00:00Z",
		"ValidTo: 2024-01-02T00:00:00Z",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d = %q, want %q", i, lines[i], line)
		}
	}

	e.ValidTo = nil
	lines = e.VersionText()
	if lines[3] != "ValidTo: (open)" {
		t.Fatalf("open version should render ValidTo: (open), got %q", lines[3])
	}
}

func TestDetailVersionTextFlattensSortedKeys(t *testing.T) {
	d := EntityDetail{
		DetailCode: "address",
		Value: map[string]any{
			"zip":  "75001",
			"city": "Paris",
			"geo":  map[string]any{"lat": 48.85, "lon": 2.35},
			"tags": []any{"home"},
		},
	}

	lines := d.VersionText()
	want := []string{
		"DetailCode: address",
		"Value:",
		"  city: \"Paris\"",
		"  geo.lat: 48.85",
		"  geo.lon: 2.35",
		"  tags[0]: \"home\"",
		"  zip: \"75001\"",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d = %q, want %q", i, lines[i], line)
		}
	}
}

func TestRenderVersionDiff(t *testing.T) {
	base := []string{"DisplayName: Alice", "EntityType: PERSON"}
	target := []string{"DisplayName: Alice B.", "EntityType: PERSON"}

	out := RenderVersionDiff("v1", base, "v2", target)

	if !strings.Contains(out, "--- v1\n") || !strings.Contains(out, "+++ v2\n") {
		t.Fatalf("missing labels in diff:\n%s", out)
	}
	if !strings.Contains(out, "-DisplayName: Alice\n") {
		t.Fatalf("missing removal line:\n%s", out)
	}
	if !strings.Contains(out, "+DisplayName: Alice B.\n") {
		t.Fatalf("missing addition line:\n%s", out)
	}
	if !strings.Contains(out, " EntityType: PERSON\n") {
		t.Fatalf("missing context line:\n%s", out)
	}
}

func TestChangeEventOrdering(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := at.Add(time.Hour)

	entityOpen := ChangeEvent{Kind: KindEntity, Op: OpOpen, At: at}
	entityClose := ChangeEvent{Kind: KindEntity, Op: OpClose, At: at}
	detailOpen := ChangeEvent{Kind: KindDetail, Op: OpOpen, At: at}
	laterEvent := ChangeEvent{Kind: KindDetail, Op: OpClose, At: later}

	if !entityClose.Less(entityOpen) {
		t.Error("close should sort before open at the same instant")
	}
	if !entityOpen.Less(detailOpen) {
		t.Error("entity events should sort before detail events at the same instant")
	}
	if !detailOpen.Less(laterEvent) {
		t.Error("earlier instants should sort first regardless of kind and op")
	}
	if laterEvent.Less(entityOpen) {
		t.Error("later instants must never sort before earlier ones")
	}
}

func TestContainsInstant(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closed := Entity{ValidFrom: from, ValidTo: &to}

	if !closed.ContainsInstant(from) {
		t.Error("valid_from is inclusive")
	}
	if closed.ContainsInstant(to) {
		t.Error("valid_to is exclusive")
	}
	if !closed.ContainsInstant(from.Add(12 * time.Hour)) {
		t.Error("interior instant should be contained")
	}
	if closed.ContainsInstant(from.Add(-time.Second)) {
		t.Error("instant before valid_from should not be contained")
	}

	open := Entity{ValidFrom: from}
	if !open.ContainsInstant(to.Add(365 * 24 * time.Hour)) {
		t.Error("open-ended version contains any later instant")
	}
}

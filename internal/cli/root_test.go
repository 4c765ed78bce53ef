package cli

import (
	"testing"
	"time"
)

func TestParseInstant(t *testing.T) {
	ts, err := parseInstant("2024-03-01T12:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("parsed %v", ts)
	}

	ts, err = parseInstant("2024-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bare date parsed as %v, want midnight UTC", ts)
	}

	if _, err := parseInstant("yesterday"); err == nil {
		t.Fatal("expected error for non-ISO input")
	}
}

func TestParseOptionalInstant(t *testing.T) {
	ts, err := parseOptionalInstant("")
	if err != nil || ts != nil {
		t.Fatalf("empty flag = (%v, %v), want (nil, nil)", ts, err)
	}
}

func TestParseValue(t *testing.T) {
	if v := parseValue(`{"city":"Paris"}`); v.(map[string]any)["city"] != "Paris" {
		t.Fatalf("object parsed as %#v", v)
	}
	if v := parseValue(`42`); v != float64(42) {
		t.Fatalf("number parsed as %#v", v)
	}
	// Unquoted scalars from the shell stay plain strings.
	if v := parseValue(`a@ex.com`); v != "a@ex.com" {
		t.Fatalf("bare string parsed as %#v", v)
	}
}

func TestParseUID(t *testing.T) {
	if _, err := requireUID(""); err == nil {
		t.Fatal("expected error for missing uid")
	}
	if _, err := parseUID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed uid")
	}
}

package hashdiff

import (
	"strings"
	"testing"
)

func TestNormalizeString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Alice", "alice"},
		{"  Alice   B.  ", "alice b."},
		{"ALICE\t\nB.", "alice b."},
		{"already normal", "already normal"},
	}
	for _, tc := range cases {
		if got := NormalizeString(tc.in); got != tc.want {
			t.Errorf("NormalizeString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"b": 1, "a": map[string]any{"y": 2, "x": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := CanonicalJSON(map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("canonical forms differ: %q vs %q", a, b)
	}
	if strings.ContainsAny(a, " \n\t") {
		t.Fatalf("canonical form contains incidental whitespace: %q", a)
	}
}

func TestCanonicalJSONNormalizesTypedValues(t *testing.T) {
	typed, err := CanonicalJSON(map[string]string{"email": "a@ex.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plain, err := CanonicalJSON(map[string]any{"email": "a@ex.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typed != plain {
		t.Fatalf("typed and plain maps canonicalize differently: %q vs %q", typed, plain)
	}
}

func TestSumIsDeterministicHex(t *testing.T) {
	first := Sum("payload")
	second := Sum("payload")
	if first != second {
		t.Fatalf("digest not deterministic: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if first == Sum("other payload") {
		t.Fatal("distinct inputs produced identical digests")
	}
}

func TestEntityFingerprintIgnoresCaseAndWhitespace(t *testing.T) {
	base := EntityFingerprint("Alice", "PERSON")
	if got := EntityFingerprint("  ALICE ", "PERSON"); got != base {
		t.Fatalf("whitespace/case variant changed fingerprint: %q vs %q", got, base)
	}
	if got := EntityFingerprint("Alice B.", "PERSON"); got == base {
		t.Fatal("distinct display names produced identical fingerprints")
	}
	if got := EntityFingerprint("Alice", "COMPANY"); got == base {
		t.Fatal("distinct type codes produced identical fingerprints")
	}
}

func TestDetailFingerprintKeyOrderIndependent(t *testing.T) {
	first, err := DetailFingerprint(map[string]any{"city": "Paris", "zip": "75001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DetailFingerprint(map[string]any{"zip": "75001", "city": "Paris"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("key order changed fingerprint: %q vs %q", first, second)
	}
}

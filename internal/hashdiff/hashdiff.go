// Package hashdiff computes deterministic fingerprints over normalized
// business fields. Fingerprints are compared for equality only, never
// reversed; identical logical content always yields the same digest.
package hashdiff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeString trims, collapses internal whitespace runs to a single
// space, and lower-cases. Case- or whitespace-only edits therefore never
// open a new version.
func NormalizeString(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// CanonicalJSON serializes a JSON-like value with map keys sorted and no
// incidental whitespace, producing a byte-stable representation regardless
// of key order. encoding/json sorts map keys, so a single marshal of the
// normalized value tree is canonical.
func CanonicalJSON(value any) (string, error) {
	normalized, err := normalizeValue(value)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize value: %w", err)
	}
	return string(encoded), nil
}

// normalizeValue round-trips non-primitive values through encoding/json so
// that structs, typed maps and typed slices collapse to the same tree their
// decoded counterparts would produce.
func normalizeValue(value any) (any, error) {
	switch value.(type) {
	case nil, bool, string, float64, int, int64, json.Number:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return decoded, nil
}

// Sum returns the SHA-256 digest of a canonical string as a 64-character
// lower-case hex string.
func Sum(canonical string) string {
	digest := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(digest[:])
}

// EntityFingerprint hashes the normalized business fields of an entity
// version. The entity type participates via its stable code rather than a
// surrogate row ID, so fingerprints survive re-seeding of the lookup table.
func EntityFingerprint(displayName, typeCode string) string {
	canonical, _ := CanonicalJSON(map[string]any{
		"display_name": NormalizeString(displayName),
		"entity_type":  typeCode,
	})
	return Sum(canonical)
}

// DetailFingerprint hashes the canonical form of a detail value.
func DetailFingerprint(value any) (string, error) {
	canonical, err := CanonicalJSON(value)
	if err != nil {
		return "", err
	}
	return Sum(canonical), nil
}

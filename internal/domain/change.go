package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kinds and operations reported by the interval diff.
const (
	KindEntity = "entity"
	KindDetail = "detail"

	OpOpen  = "OPEN"
	OpClose = "CLOSE"
)

// ChangeEvent is one version-open or version-close event derived from the
// interval boundaries of the version tables. The audit trail is not
// consulted; validity intervals are the canonical source for diffs.
type ChangeEvent struct {
	Kind       string         `json:"kind"`
	Op         string         `json:"op"`
	EntityUID  uuid.UUID      `json:"entity_uid"`
	DetailCode *string        `json:"detail_code,omitempty"`
	At         time.Time      `json:"at"`
	After      map[string]any `json:"after,omitempty"`
}

// kindRank orders entity events before detail events at the same instant.
func kindRank(kind string) int {
	if kind == KindEntity {
		return 0
	}
	return 1
}

// opRank orders close events before open events at the same instant.
func opRank(op string) int {
	if op == OpClose {
		return 0
	}
	return 1
}

// Less defines the deterministic output order of a diff: event instant,
// then kind, then operation.
func (c ChangeEvent) Less(other ChangeEvent) bool {
	if !c.At.Equal(other.At) {
		return c.At.Before(other.At)
	}
	if kindRank(c.Kind) != kindRank(other.Kind) {
		return kindRank(c.Kind) < kindRank(other.Kind)
	}
	return opRank(c.Op) < opRank(other.Op)
}

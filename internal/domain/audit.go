package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded for SCD2 version transitions.
const (
	ActionOpenEntity  = "OPEN_ENTITY"
	ActionCloseEntity = "CLOSE_ENTITY"
	ActionOpenDetail  = "OPEN_DETAIL"
	ActionCloseDetail = "CLOSE_DETAIL"
)

// AuditRecord is one append-only entry in the audit trail. Records are
// written in the same transaction as the version transition they describe
// and never mutated afterward.
type AuditRecord struct {
	ID         int64          `json:"id"`
	ChangeTS   time.Time      `json:"change_ts"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityUID  uuid.UUID      `json:"entity_uid"`
	DetailCode *string        `json:"detail_code,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

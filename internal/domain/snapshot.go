package domain

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotDetail is one detail value effective at the snapshot instant.
type SnapshotDetail struct {
	DetailCode string     `json:"detail_code"`
	Value      any        `json:"value_json"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to"`
}

// EntitySnapshot is the reconstructed state of one logical entity as of a
// given instant: the single version row whose interval contains the instant
// plus all detail versions effective at the same instant, grouped by code.
type EntitySnapshot struct {
	EntityUID   uuid.UUID                 `json:"entity_uid"`
	DisplayName string                    `json:"display_name"`
	TypeCode    string                    `json:"entity_type"`
	ValidFrom   time.Time                 `json:"valid_from"`
	ValidTo     *time.Time                `json:"valid_to"`
	Details     map[string]SnapshotDetail `json:"details"`
}

// SnapshotFilter narrows an as-of snapshot. Zero value means no filtering.
type SnapshotFilter struct {
	// NameContains matches on a substring of display_name, case-insensitive.
	NameContains string
	// TypeCode requires an exact entity type code.
	TypeCode string
	// DetailCode requires a detail with this code to be effective as of the
	// snapshot instant.
	DetailCode string
	// DetailValue additionally requires the detail's value to equal this
	// JSON value exactly. Only consulted when DetailCode is set.
	DetailValue any
	// HasDetailValue distinguishes "no value filter" from a null value.
	HasDetailValue bool
}

// History is the full version record of one logical entity: every entity
// version ordered by valid_from and every detail version ordered by
// (detail_code, valid_from).
type History struct {
	EntityUID uuid.UUID      `json:"entity_uid"`
	Versions  []Entity       `json:"entity"`
	Details   []EntityDetail `json:"details"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is a reference lookup for the kinds of logical entities the
// store tracks. Types are immutable once referenced by a version row.
type EntityType struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Entity is one version row of a logical entity. The logical identity is
// EntityUID; ID is the row surrogate key and is never exposed as identity.
// A version is effective over [ValidFrom, ValidTo); a nil ValidTo means the
// version is open-ended.
type Entity struct {
	ID          int64      `json:"id"`
	EntityUID   uuid.UUID  `json:"entity_uid"`
	DisplayName string     `json:"display_name"`
	TypeCode    string     `json:"entity_type"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to"`
	IsCurrent   bool       `json:"is_current"`
	Hashdiff    string     `json:"hashdiff"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EntityDetail is one version row of a key/value attribute attached to a
// logical entity. The logical key is (EntityUID, DetailCode); the SCD2
// semantics are identical to Entity scoped to that composite key.
type EntityDetail struct {
	ID         int64      `json:"id"`
	EntityUID  uuid.UUID  `json:"entity_uid"`
	DetailCode string     `json:"detail_code"`
	Value      any        `json:"value_json"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidTo    *time.Time `json:"valid_to"`
	IsCurrent  bool       `json:"is_current"`
	Hashdiff   string     `json:"hashdiff"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ContainsInstant reports whether ts falls inside the version's validity
// interval, valid_from inclusive and valid_to exclusive.
func (e Entity) ContainsInstant(ts time.Time) bool {
	if ts.Before(e.ValidFrom) {
		return false
	}
	return e.ValidTo == nil || ts.Before(*e.ValidTo)
}

// ContainsInstant reports whether ts falls inside the detail version's
// validity interval.
func (d EntityDetail) ContainsInstant(ts time.Time) bool {
	if ts.Before(d.ValidFrom) {
		return false
	}
	return d.ValidTo == nil || ts.Before(*d.ValidTo)
}

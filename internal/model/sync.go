package model

import (
	"time"
)

// EntityType identifies a syncable entity class
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntityItem     EntityType = "item"
	EntityOrder    EntityType = "order"
	EntityPricing  EntityType = "pricing"
)

// EntityTypes lists every syncable entity class in dependency order
// (orders last: they reference customers and items).
var EntityTypes = []EntityType{EntityCustomer, EntityItem, EntityPricing, EntityOrder}

// ParseEntityType validates an entity type received from the API
func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case EntityCustomer, EntityItem, EntityOrder, EntityPricing:
		return EntityType(s), true
	}
	return "", false
}

// SyncMeta carries the per-record sync bookkeeping shared by all syncable
// entities. ExternalID is set only after a confirmed round-trip with
// QuickBooks; Dirty is set whenever a business field changes afterwards.
// Dirty carries no column default: GORM skips zero-value fields on insert
// when the column has one, which would flip records created from a remote
// pull back to pending.
type SyncMeta struct {
	ExternalID   string     `json:"external_id" gorm:"type:varchar(64);index"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	Dirty        bool       `json:"sync_pending" gorm:"column:dirty;index"`
}

// Synced reports whether the record has completed at least one sync and has
// no local changes waiting to be pushed.
func (m *SyncMeta) Synced() bool {
	return m.ExternalID != "" && !m.Dirty
}

// SyncRun status values
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// SyncRun records a single orchestrator pass for one entity type
type SyncRun struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	EntityType  EntityType `json:"entity_type" gorm:"type:varchar(20);index;not null"`
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	FinishedAt  *time.Time `json:"finished_at"`
	Status      string     `json:"status" gorm:"type:varchar(10);index;not null"`
	Processed   int        `json:"processed"`
	Succeeded   int        `json:"succeeded"`
	FailedCount int        `json:"failed" gorm:"column:failed_count"`
	Skipped     int        `json:"skipped"`
	Message     string     `json:"message" gorm:"type:text"`
}

// SyncLogEntry is an append-only activity log line for operator visibility
type SyncLogEntry struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
	EntityType EntityType `json:"entity_type" gorm:"type:varchar(20);index"`
	Level      string     `json:"level" gorm:"type:varchar(10)"`
	Message    string     `json:"message" gorm:"type:text"`
}

// Log levels for SyncLogEntry
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Package qbsync is the QuickBooks synchronization engine: per-entity sync
// modules, the run orchestrator/scheduler, and the status/log services.
package qbsync

import (
	"fmt"

	"github.com/covxx/Paleta-sub000/internal/model"
)

// RecordError describes a single record that failed or was skipped during a
// run. Reason strings are operator-facing and surface verbatim in the log.
type RecordError struct {
	LocalID uint   `json:"local_id"`
	Reason  string `json:"reason"`
}

// SyncResult aggregates the outcome of one sync pass for one entity type.
// Per-record failures accumulate here and never abort sibling records.
type SyncResult struct {
	EntityType model.EntityType `json:"entity_type"`
	Processed  int              `json:"processed"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Errors     []RecordError    `json:"errors,omitempty"`
	Skips      []RecordError    `json:"skips,omitempty"`
}

func newResult(entityType model.EntityType) *SyncResult {
	return &SyncResult{EntityType: entityType}
}

func (r *SyncResult) fail(localID uint, reason string) {
	r.Failed++
	r.Errors = append(r.Errors, RecordError{LocalID: localID, Reason: reason})
}

// skip records a business-rule skip (for example an order whose customer has
// not synced yet). Skips are informational, not errors.
func (r *SyncResult) skip(localID uint, reason string) {
	r.Skipped++
	r.Skips = append(r.Skips, RecordError{LocalID: localID, Reason: reason})
}

func (r *SyncResult) merge(other *SyncResult) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
	r.Skips = append(r.Skips, other.Skips...)
}

// Status maps the counters to a SyncRun status.
func (r *SyncResult) Status() string {
	switch {
	case r.Failed == 0:
		return model.RunStatusSuccess
	case r.Succeeded == 0:
		return model.RunStatusFailed
	default:
		return model.RunStatusPartial
	}
}

// Summary renders a one-line operator summary for the activity log.
func (r *SyncResult) Summary() string {
	return fmt.Sprintf("%s sync finished: %d processed, %d succeeded, %d failed, %d skipped",
		r.EntityType, r.Processed, r.Succeeded, r.Failed, r.Skipped)
}

// OrderSyncOutcome is what the instant-sync hook reports back to the order
// creation path, so the UI can show "synced" or "queued" immediately.
type OrderSyncOutcome struct {
	Synced     bool   `json:"synced"`
	ExternalID string `json:"external_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

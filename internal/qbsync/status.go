package qbsync

import (
	"context"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/store"
)

// EntityCounter computes live per-entity record tallies. Satisfied by
// *store.StatusStore.
type EntityCounter interface {
	Counts(ctx context.Context, entityType model.EntityType) (store.EntityCounts, error)
}

// ConnectionChecker reports whether a QuickBooks company is connected.
// Satisfied by *quickbooks.TokenManager.
type ConnectionChecker interface {
	Connected(ctx context.Context) bool
}

// EntityStatus is the per-entity block of the status snapshot.
type EntityStatus struct {
	store.EntityCounts
	Running bool           `json:"running"`
	LastRun *model.SyncRun `json:"last_run,omitempty"`
}

// StatusSnapshot is what the admin UI polls.
type StatusSnapshot struct {
	Connected bool                              `json:"connected"`
	Entities  map[model.EntityType]EntityStatus `json:"entities"`
	LastRunAt *time.Time                        `json:"last_run_at,omitempty"`
	NextRunAt *time.Time                        `json:"next_run_at,omitempty"`
}

// StatusService assembles the status snapshot and serves the activity log.
// Every snapshot is computed from live counts and the latest SyncRun rows,
// never from a cache, so the UI can never show a stale success banner.
type StatusService struct {
	counts EntityCounter
	runs   RunStore
	orch   *Orchestrator
	conn   ConnectionChecker
}

// NewStatusService creates the status service
func NewStatusService(counts EntityCounter, runs RunStore, orch *Orchestrator, conn ConnectionChecker) *StatusService {
	return &StatusService{counts: counts, runs: runs, orch: orch, conn: conn}
}

// CurrentStatus computes the live status snapshot
func (s *StatusService) CurrentStatus(ctx context.Context) (*StatusSnapshot, error) {
	snapshot := &StatusSnapshot{
		Connected: s.conn.Connected(ctx),
		Entities:  make(map[model.EntityType]EntityStatus, len(model.EntityTypes)),
	}

	for _, et := range model.EntityTypes {
		counts, err := s.counts.Counts(ctx, et)
		if err != nil {
			return nil, err
		}
		last, err := s.runs.Latest(ctx, et)
		if err != nil {
			return nil, err
		}
		snapshot.Entities[et] = EntityStatus{
			EntityCounts: counts,
			Running:      s.orch.Running(et),
			LastRun:      last,
		}
	}

	last, next := s.orch.Schedule()
	if !last.IsZero() {
		snapshot.LastRunAt = &last
	}
	if !next.IsZero() {
		snapshot.NextRunAt = &next
	}
	return snapshot, nil
}

// RecentLogs returns the newest activity log entries, optionally filtered
// by entity type.
func (s *StatusService) RecentLogs(ctx context.Context, entityType model.EntityType, limit int) ([]model.SyncLogEntry, error) {
	return s.runs.RecentLogs(ctx, entityType, limit)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/prometheus"
	"gorm.io/gorm"
)

// RunStore persists sync runs and the append-only activity log.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a run store
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// Begin inserts a running SyncRun for the entity type
func (s *RunStore) Begin(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	run := &model.SyncRun{
		EntityType: entityType,
		StartedAt:  time.Now().UTC(),
		Status:     model.RunStatusRunning,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finish stamps the run finished and writes its final counters
func (s *RunStore) Finish(ctx context.Context, run *model.SyncRun) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	now := time.Now().UTC()
	run.FinishedAt = &now
	return s.db.WithContext(ctx).Save(run).Error
}

// Latest returns the most recent run for the entity type, nil when the
// entity has never been synced.
func (s *RunStore) Latest(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var run model.SyncRun
	err := s.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastSuccess returns the most recent run that completed without failures.
// Its start time is the incremental-pull watermark for inbound sync.
func (s *RunStore) LastSuccess(ctx context.Context, entityType model.EntityType) (*model.SyncRun, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var run model.SyncRun
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND status = ?", entityType, model.RunStatusSuccess).
		Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FailStale marks any run still flagged running as failed. Called once at
// startup so a crash mid-run cannot leave a run stuck in running forever.
func (s *RunStore) FailStale(ctx context.Context) (int64, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&model.SyncRun{}).
		Where("status = ?", model.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":      model.RunStatusFailed,
			"finished_at": now,
			"message":     "interrupted by restart",
		})
	return result.RowsAffected, result.Error
}

// AppendLog writes one activity log entry
func (s *RunStore) AppendLog(ctx context.Context, entityType model.EntityType, level, message string) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	entry := &model.SyncLogEntry{
		CreatedAt:  time.Now().UTC(),
		EntityType: entityType,
		Level:      level,
		Message:    message,
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// RecentLogs returns the newest log entries, optionally filtered by entity
// type, newest first.
func (s *RunStore) RecentLogs(ctx context.Context, entityType model.EntityType, limit int) ([]model.SyncLogEntry, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	var entries []model.SyncLogEntry
	err := q.Find(&entries).Error
	return entries, err
}

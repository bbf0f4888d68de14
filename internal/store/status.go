package store

import (
	"context"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/prometheus"
	"gorm.io/gorm"
)

// EntityCounts is the per-entity sync tally shown on the status endpoint.
type EntityCounts struct {
	Total   int64 `json:"total"`
	Synced  int64 `json:"synced"`
	Pending int64 `json:"pending"`
}

// StatusStore computes live per-entity counts. Counts are computed per call,
// never cached: a stale snapshot here is exactly the "status never updates"
// failure this endpoint exists to rule out.
type StatusStore struct {
	db *gorm.DB
}

// NewStatusStore creates a status store
func NewStatusStore(db *gorm.DB) *StatusStore {
	return &StatusStore{db: db}
}

// Counts tallies total, synced and pending records for the entity type
func (s *StatusStore) Counts(ctx context.Context, entityType model.EntityType) (EntityCounts, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var target interface{}
	switch entityType {
	case model.EntityCustomer:
		target = &model.Customer{}
	case model.EntityItem:
		target = &model.Item{}
	case model.EntityOrder:
		target = &model.Order{}
	case model.EntityPricing:
		target = &model.PriceRule{}
	default:
		return EntityCounts{}, nil
	}

	var counts EntityCounts
	db := s.db.WithContext(ctx).Model(target)
	if err := db.Count(&counts.Total).Error; err != nil {
		return counts, err
	}
	if err := s.db.WithContext(ctx).Model(target).
		Where("external_id <> '' AND dirty = ?", false).
		Count(&counts.Synced).Error; err != nil {
		return counts, err
	}
	if err := s.db.WithContext(ctx).Model(target).
		Where("dirty = ?", true).
		Count(&counts.Pending).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

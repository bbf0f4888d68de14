package qbsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/covxx/Paleta-sub000/prometheus"
	"go.uber.org/zap"
)

// PriceRuleStore is the price rule persistence the module needs. Satisfied
// by *store.PriceRuleStore.
type PriceRuleStore interface {
	ListDirty(ctx context.Context) ([]model.PriceRule, error)
	MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error
}

// PricingSyncer pushes price revisions as sparse UnitPrice updates on the
// linked QuickBooks item. Push-only: price changes made in QuickBooks flow
// back through the item inbound sync instead.
type PricingSyncer struct {
	store PriceRuleStore
	api   ItemAPI
	log   *zap.Logger
	now   func() time.Time
}

// NewPricingSyncer creates the pricing sync module
func NewPricingSyncer(store PriceRuleStore, api ItemAPI, log *zap.Logger) *PricingSyncer {
	return &PricingSyncer{store: store, api: api, log: log, now: time.Now}
}

func (s *PricingSyncer) EntityType() model.EntityType { return model.EntityPricing }

// SyncOutbound pushes every dirty price rule whose item is already synced.
func (s *PricingSyncer) SyncOutbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityPricing)

	dirty, err := s.store.ListDirty(ctx)
	if err != nil {
		return res, fmt.Errorf("list dirty price rules: %w", err)
	}

	for i := range dirty {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rule := &dirty[i]
		res.Processed++

		if rule.Item == nil {
			res.fail(rule.ID, "price rule references a missing item")
			continue
		}
		if rule.Item.SyncMeta.ExternalID == "" {
			prometheus.RecordSyncRecord("pricing", "outbound", "skipped")
			res.skip(rule.ID, fmt.Sprintf(skipItemNotSyncedFmt, rule.Item.SKU))
			continue
		}

		externalID, err := s.pushOne(ctx, rule)
		if err != nil {
			if errors.Is(err, quickbooks.ErrReauthRequired) {
				return res, err
			}
			prometheus.RecordSyncRecord("pricing", "outbound", "failed")
			s.log.Warn("Price rule push failed",
				zap.Uint("price_rule_id", rule.ID),
				zap.String("sku", rule.Item.SKU),
				zap.Error(err))
			res.fail(rule.ID, err.Error())
			continue
		}

		if err := s.store.MarkSynced(ctx, rule.ID, externalID, s.now().UTC()); err != nil {
			res.fail(rule.ID, fmt.Sprintf("mark synced: %v", err))
			continue
		}
		prometheus.RecordSyncRecord("pricing", "outbound", "success")
		res.Succeeded++
	}

	return res, nil
}

// SyncInbound is a no-op: remote price changes arrive via the item sync.
func (s *PricingSyncer) SyncInbound(ctx context.Context) (*SyncResult, error) {
	return newResult(model.EntityPricing), nil
}

func (s *PricingSyncer) pushOne(ctx context.Context, rule *model.PriceRule) (string, error) {
	current, err := s.api.GetItem(ctx, rule.Item.SyncMeta.ExternalID)
	if err != nil {
		return "", err
	}
	updated, err := s.api.UpdateItem(ctx, &quickbooks.Item{
		ID:        current.ID,
		SyncToken: current.SyncToken,
		UnitPrice: rule.UnitPrice,
	})
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}

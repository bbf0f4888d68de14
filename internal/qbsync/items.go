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

// ItemStore is the item persistence the module needs. Satisfied by
// *store.ItemStore.
type ItemStore interface {
	ListDirty(ctx context.Context) ([]model.Item, error)
	FindBySKU(ctx context.Context, sku string) (*model.Item, error)
	CreateFromRemote(ctx context.Context, item *model.Item) error
	UpdateFromRemote(ctx context.Context, item *model.Item) error
	SetExternalID(ctx context.Context, id uint, externalID string) error
	MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error
}

// ItemAPI is the provider surface the module needs. Satisfied by
// *quickbooks.Client.
type ItemAPI interface {
	ItemsUpdatedSince(ctx context.Context, since time.Time) ([]quickbooks.Item, error)
	GetItem(ctx context.Context, id string) (*quickbooks.Item, error)
	CreateItem(ctx context.Context, item *quickbooks.Item) (*quickbooks.Item, error)
	UpdateItem(ctx context.Context, item *quickbooks.Item) (*quickbooks.Item, error)
}

// ItemSyncer maps local items to QuickBooks items, matched by SKU.
type ItemSyncer struct {
	store ItemStore
	api   ItemAPI
	runs  RunHistory
	log   *zap.Logger
	now   func() time.Time
}

// NewItemSyncer creates the item sync module
func NewItemSyncer(store ItemStore, api ItemAPI, runs RunHistory, log *zap.Logger) *ItemSyncer {
	return &ItemSyncer{store: store, api: api, runs: runs, log: log, now: time.Now}
}

func (s *ItemSyncer) EntityType() model.EntityType { return model.EntityItem }

// SyncOutbound pushes every dirty item.
func (s *ItemSyncer) SyncOutbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityItem)

	dirty, err := s.store.ListDirty(ctx)
	if err != nil {
		return res, fmt.Errorf("list dirty items: %w", err)
	}

	for i := range dirty {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item := &dirty[i]
		res.Processed++

		externalID, err := s.pushOne(ctx, item)
		if err != nil {
			if errors.Is(err, quickbooks.ErrReauthRequired) {
				return res, err
			}
			prometheus.RecordSyncRecord("item", "outbound", "failed")
			s.log.Warn("Item push failed",
				zap.Uint("item_id", item.ID),
				zap.String("sku", item.SKU),
				zap.Error(err))
			res.fail(item.ID, err.Error())
			continue
		}

		if err := s.store.MarkSynced(ctx, item.ID, externalID, s.now().UTC()); err != nil {
			res.fail(item.ID, fmt.Sprintf("mark synced: %v", err))
			continue
		}
		prometheus.RecordSyncRecord("item", "outbound", "success")
		res.Succeeded++
	}

	return res, nil
}

func (s *ItemSyncer) pushOne(ctx context.Context, item *model.Item) (string, error) {
	payload := itemPayload(item)

	if item.SyncMeta.ExternalID == "" {
		created, err := s.api.CreateItem(ctx, payload)
		if err != nil {
			return "", err
		}
		return created.ID, nil
	}

	current, err := s.api.GetItem(ctx, item.SyncMeta.ExternalID)
	if err != nil {
		return "", err
	}
	payload.ID = current.ID
	payload.SyncToken = current.SyncToken
	updated, err := s.api.UpdateItem(ctx, payload)
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}

// SyncInbound pulls items changed in QuickBooks since the last fully
// successful run, matched locally by SKU. Local-wins on dirty records.
func (s *ItemSyncer) SyncInbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityItem)

	last, err := s.runs.LastSuccess(ctx, model.EntityItem)
	if err != nil {
		return res, fmt.Errorf("load sync watermark: %w", err)
	}
	since := time.Unix(0, 0).UTC()
	if last != nil {
		since = last.StartedAt
	}

	remote, err := s.api.ItemsUpdatedSince(ctx, since)
	if err != nil {
		return res, err
	}

	for i := range remote {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ri := &remote[i]
		res.Processed++

		if ri.SKU == "" {
			res.skip(0, fmt.Sprintf("provider item %s has no SKU, cannot match", ri.ID))
			continue
		}

		local, err := s.store.FindBySKU(ctx, ri.SKU)
		if err != nil {
			res.fail(0, fmt.Sprintf("lookup by sku: %v", err))
			continue
		}

		switch {
		case local == nil:
			fresh := itemFromRemote(ri, s.now().UTC())
			if err := s.store.CreateFromRemote(ctx, fresh); err != nil {
				res.fail(0, fmt.Sprintf("create local item: %v", err))
				continue
			}
		case local.SyncMeta.Dirty:
			if err := s.store.SetExternalID(ctx, local.ID, ri.ID); err != nil {
				res.fail(local.ID, fmt.Sprintf("set external id: %v", err))
				continue
			}
		default:
			applyRemoteItem(local, ri, s.now().UTC())
			if err := s.store.UpdateFromRemote(ctx, local); err != nil {
				res.fail(local.ID, fmt.Sprintf("apply remote item: %v", err))
				continue
			}
		}
		prometheus.RecordSyncRecord("item", "inbound", "success")
		res.Succeeded++
	}

	return res, nil
}

func itemPayload(item *model.Item) *quickbooks.Item {
	active := item.IsActive
	return &quickbooks.Item{
		Name:        item.Name,
		SKU:         item.SKU,
		Description: item.Description,
		Type:        "NonInventory",
		UnitPrice:   item.UnitPrice,
		Active:      &active,
	}
}

func itemFromRemote(ri *quickbooks.Item, at time.Time) *model.Item {
	return &model.Item{
		Name:        ri.Name,
		SKU:         ri.SKU,
		Description: ri.Description,
		UnitPrice:   ri.UnitPrice,
		IsActive:    ri.Active == nil || *ri.Active,
		SyncMeta: model.SyncMeta{
			ExternalID:   ri.ID,
			LastSyncedAt: &at,
			Dirty:        false,
		},
	}
}

func applyRemoteItem(local *model.Item, ri *quickbooks.Item, at time.Time) {
	local.Name = ri.Name
	local.Description = ri.Description
	local.UnitPrice = ri.UnitPrice
	if ri.Active != nil {
		local.IsActive = *ri.Active
	}
	local.SyncMeta.ExternalID = ri.ID
	local.SyncMeta.LastSyncedAt = &at
	local.SyncMeta.Dirty = false
}

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

// Skip reasons surfaced to operators for ineligible orders.
const (
	SkipCustomerNotSynced = "customer not synced"
	skipItemNotSyncedFmt  = "item %s not synced"
)

// OrderStore is the order persistence the module needs. Satisfied by
// *store.OrderStore.
type OrderStore interface {
	ListDirty(ctx context.Context) ([]model.Order, error)
	Load(ctx context.Context, id uint) (*model.Order, error)
	MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error
}

// OrderAPI is the provider surface the module needs. Satisfied by
// *quickbooks.Client.
type OrderAPI interface {
	CreateInvoice(ctx context.Context, inv *quickbooks.Invoice) (*quickbooks.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*quickbooks.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *quickbooks.Invoice) (*quickbooks.Invoice, error)
}

// OrderSyncer pushes local orders to QuickBooks as invoices. Orders are
// push-only: QuickBooks never creates orders here. An order is eligible only
// once its customer and every line item carry an external id; anything else
// is skipped with a reason instead of attempted and failed.
type OrderSyncer struct {
	store OrderStore
	api   OrderAPI
	log   *zap.Logger
	now   func() time.Time
}

// NewOrderSyncer creates the order sync module
func NewOrderSyncer(store OrderStore, api OrderAPI, log *zap.Logger) *OrderSyncer {
	return &OrderSyncer{store: store, api: api, log: log, now: time.Now}
}

func (s *OrderSyncer) EntityType() model.EntityType { return model.EntityOrder }

// SyncOutbound pushes every eligible dirty order.
func (s *OrderSyncer) SyncOutbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityOrder)

	dirty, err := s.store.ListDirty(ctx)
	if err != nil {
		return res, fmt.Errorf("list dirty orders: %w", err)
	}

	for i := range dirty {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		order := &dirty[i]
		res.Processed++

		if reason := eligibility(order); reason != "" {
			prometheus.RecordSyncRecord("order", "outbound", "skipped")
			res.skip(order.ID, reason)
			continue
		}

		externalID, err := s.pushOne(ctx, order)
		if err != nil {
			if errors.Is(err, quickbooks.ErrReauthRequired) {
				return res, err
			}
			prometheus.RecordSyncRecord("order", "outbound", "failed")
			s.log.Warn("Order push failed",
				zap.Uint("order_id", order.ID),
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
			res.fail(order.ID, err.Error())
			continue
		}

		if err := s.store.MarkSynced(ctx, order.ID, externalID, s.now().UTC()); err != nil {
			res.fail(order.ID, fmt.Sprintf("mark synced: %v", err))
			continue
		}
		prometheus.RecordSyncRecord("order", "outbound", "success")
		res.Succeeded++
	}

	return res, nil
}

// SyncInbound is a no-op: orders are push-only.
func (s *OrderSyncer) SyncInbound(ctx context.Context) (*SyncResult, error) {
	return newResult(model.EntityOrder), nil
}

// SyncOrder pushes a single order immediately. This backs the instant-sync
// hook on the order creation path: the outcome is returned synchronously so
// the caller can report "synced" or "queued" right away.
func (s *OrderSyncer) SyncOrder(ctx context.Context, orderID uint) OrderSyncOutcome {
	order, err := s.store.Load(ctx, orderID)
	if err != nil {
		return OrderSyncOutcome{Reason: fmt.Sprintf("load order: %v", err)}
	}
	if order == nil {
		return OrderSyncOutcome{Reason: "order not found"}
	}

	if reason := eligibility(order); reason != "" {
		s.log.Info("Order not eligible for instant sync",
			zap.Uint("order_id", orderID),
			zap.String("reason", reason))
		return OrderSyncOutcome{Reason: reason}
	}

	externalID, err := s.pushOne(ctx, order)
	if err != nil {
		s.log.Warn("Instant order sync failed, order stays queued",
			zap.Uint("order_id", orderID),
			zap.Error(err))
		return OrderSyncOutcome{Reason: err.Error()}
	}

	if err := s.store.MarkSynced(ctx, order.ID, externalID, s.now().UTC()); err != nil {
		return OrderSyncOutcome{Reason: fmt.Sprintf("mark synced: %v", err)}
	}
	return OrderSyncOutcome{Synced: true, ExternalID: externalID}
}

func (s *OrderSyncer) pushOne(ctx context.Context, order *model.Order) (string, error) {
	payload := invoicePayload(order)

	if order.SyncMeta.ExternalID == "" {
		created, err := s.api.CreateInvoice(ctx, payload)
		if err != nil {
			return "", err
		}
		return created.ID, nil
	}

	current, err := s.api.GetInvoice(ctx, order.SyncMeta.ExternalID)
	if err != nil {
		return "", err
	}
	payload.ID = current.ID
	payload.SyncToken = current.SyncToken
	updated, err := s.api.UpdateInvoice(ctx, payload)
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}

// eligibility returns the reason an order cannot sync yet, or "" when it can.
func eligibility(order *model.Order) string {
	if order.Customer == nil || order.Customer.SyncMeta.ExternalID == "" {
		return SkipCustomerNotSynced
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Item == nil || line.Item.SyncMeta.ExternalID == "" {
			name := fmt.Sprintf("#%d", line.ItemID)
			if line.Item != nil && line.Item.SKU != "" {
				name = line.Item.SKU
			}
			return fmt.Sprintf(skipItemNotSyncedFmt, name)
		}
	}
	return ""
}

// invoicePayload maps an order onto a QuickBooks invoice.
func invoicePayload(order *model.Order) *quickbooks.Invoice {
	inv := &quickbooks.Invoice{
		DocNumber:   order.OrderNumber,
		TxnDate:     order.OrderDate.Format("2006-01-02"),
		CustomerRef: quickbooks.Ref{Value: order.Customer.SyncMeta.ExternalID},
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		inv.Line = append(inv.Line, quickbooks.InvoiceLine{
			Amount:      line.LineTotal(),
			Description: line.Item.Name,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &quickbooks.SalesItemLineDetail{
				ItemRef:   quickbooks.Ref{Value: line.Item.SyncMeta.ExternalID},
				Qty:       line.Quantity,
				UnitPrice: line.UnitPrice,
			},
		})
	}
	return inv
}

package qbsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/internal/quickbooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOrderStore is an in-memory OrderStore.
type fakeOrderStore struct {
	orders map[uint]*model.Order
}

var _ OrderStore = (*fakeOrderStore)(nil)

func newFakeOrderStore(orders ...*model.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[uint]*model.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) ListDirty(_ context.Context) ([]model.Order, error) {
	var out []model.Order
	for _, o := range s.orders {
		if o.SyncMeta.Dirty {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) Load(_ context.Context, id uint) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *fakeOrderStore) MarkSynced(_ context.Context, id uint, externalID string, at time.Time) error {
	o := s.orders[id]
	o.SyncMeta.ExternalID = externalID
	o.SyncMeta.LastSyncedAt = &at
	o.SyncMeta.Dirty = false
	return nil
}

// fakeOrderAPI records invoice calls.
type fakeOrderAPI struct {
	createErr error

	creates     int
	gets        int
	updates     int
	lastInvoice *quickbooks.Invoice
}

var _ OrderAPI = (*fakeOrderAPI)(nil)

func (f *fakeOrderAPI) CreateInvoice(_ context.Context, inv *quickbooks.Invoice) (*quickbooks.Invoice, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastInvoice = inv
	created := *inv
	created.ID = "INV-1"
	return &created, nil
}

func (f *fakeOrderAPI) GetInvoice(_ context.Context, id string) (*quickbooks.Invoice, error) {
	f.gets++
	return &quickbooks.Invoice{ID: id, SyncToken: "2"}, nil
}

func (f *fakeOrderAPI) UpdateInvoice(_ context.Context, inv *quickbooks.Invoice) (*quickbooks.Invoice, error) {
	f.updates++
	f.lastInvoice = inv
	return inv, nil
}

func syncedCustomer() *model.Customer {
	return &model.Customer{
		ID:       1,
		Name:     "Acme Farms",
		Email:    "buyer@acme.test",
		SyncMeta: model.SyncMeta{ExternalID: "QB-C1"},
	}
}

func syncedItem(sku, externalID string) *model.Item {
	return &model.Item{
		ID:        7,
		Name:      "Hass Avocado",
		SKU:       sku,
		UnitPrice: 2.5,
		SyncMeta:  model.SyncMeta{ExternalID: externalID},
	}
}

func eligibleOrder() *model.Order {
	return &model.Order{
		ID:          10,
		OrderNumber: "ORD-1001",
		CustomerID:  1,
		Customer:    syncedCustomer(),
		OrderDate:   time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		Lines: []model.OrderLine{
			{ID: 1, OrderID: 10, ItemID: 7, Item: syncedItem("AVO-HASS", "QB-I7"), Quantity: 4, UnitPrice: 2.5},
		},
		SyncMeta: model.SyncMeta{Dirty: true},
	}
}

func TestOrderOutboundPushesEligibleOrderAsInvoice(t *testing.T) {
	store := newFakeOrderStore(eligibleOrder())
	api := &fakeOrderAPI{}
	s := NewOrderSyncer(store, api, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, api.creates)

	inv := api.lastInvoice
	require.NotNil(t, inv)
	assert.Equal(t, "ORD-1001", inv.DocNumber)
	assert.Equal(t, "2026-08-25", inv.TxnDate)
	assert.Equal(t, "QB-C1", inv.CustomerRef.Value)
	require.Len(t, inv.Line, 1)
	assert.Equal(t, 10.0, inv.Line[0].Amount)
	assert.Equal(t, "QB-I7", inv.Line[0].SalesItemLineDetail.ItemRef.Value)

	o := store.orders[10]
	assert.Equal(t, "INV-1", o.SyncMeta.ExternalID)
	assert.False(t, o.SyncMeta.Dirty)
}

func TestOrderOutboundSkipsUnsyncedCustomer(t *testing.T) {
	order := eligibleOrder()
	order.Customer.SyncMeta.ExternalID = ""
	store := newFakeOrderStore(order)
	api := &fakeOrderAPI{}
	s := NewOrderSyncer(store, api, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed, "ineligible orders are skips, not failures")
	require.Len(t, res.Skips, 1)
	assert.Equal(t, SkipCustomerNotSynced, res.Skips[0].Reason)
	assert.Zero(t, api.creates)
	assert.True(t, store.orders[10].SyncMeta.Dirty, "skipped orders stay queued")
}

func TestOrderOutboundSkipsUnsyncedItem(t *testing.T) {
	order := eligibleOrder()
	order.Lines[0].Item.SyncMeta.ExternalID = ""
	store := newFakeOrderStore(order)
	api := &fakeOrderAPI{}
	s := NewOrderSyncer(store, api, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, "item AVO-HASS not synced", res.Skips[0].Reason)
	assert.Zero(t, api.creates)
}

func TestOrderOutboundUpdatesExistingInvoice(t *testing.T) {
	order := eligibleOrder()
	order.SyncMeta.ExternalID = "INV-1"
	store := newFakeOrderStore(order)
	api := &fakeOrderAPI{}
	s := NewOrderSyncer(store, api, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, api.gets)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, "2", api.lastInvoice.SyncToken)
}

func TestOrderOutboundAbortsOnReauthRequired(t *testing.T) {
	store := newFakeOrderStore(eligibleOrder())
	api := &fakeOrderAPI{createErr: quickbooks.ErrReauthRequired}
	s := NewOrderSyncer(store, api, zap.NewNop())

	_, err := s.SyncOutbound(context.Background())
	assert.ErrorIs(t, err, quickbooks.ErrReauthRequired)
}

func TestOrderInboundIsNoOp(t *testing.T) {
	s := NewOrderSyncer(newFakeOrderStore(), &fakeOrderAPI{}, zap.NewNop())

	res, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestSyncOrderInstantSuccess(t *testing.T) {
	store := newFakeOrderStore(eligibleOrder())
	api := &fakeOrderAPI{}
	s := NewOrderSyncer(store, api, zap.NewNop())

	outcome := s.SyncOrder(context.Background(), 10)
	assert.True(t, outcome.Synced)
	assert.Equal(t, "INV-1", outcome.ExternalID)
	assert.False(t, store.orders[10].SyncMeta.Dirty)
}

func TestSyncOrderInstantIneligibleReportsReason(t *testing.T) {
	order := eligibleOrder()
	order.Customer.SyncMeta.ExternalID = ""
	store := newFakeOrderStore(order)
	s := NewOrderSyncer(store, &fakeOrderAPI{}, zap.NewNop())

	outcome := s.SyncOrder(context.Background(), 10)
	assert.False(t, outcome.Synced)
	assert.Equal(t, SkipCustomerNotSynced, outcome.Reason)
	assert.True(t, store.orders[10].SyncMeta.Dirty)
}

func TestSyncOrderInstantProviderFailureQueues(t *testing.T) {
	store := newFakeOrderStore(eligibleOrder())
	api := &fakeOrderAPI{createErr: errors.New("quickbooks: transient failure")}
	s := NewOrderSyncer(store, api, zap.NewNop())

	outcome := s.SyncOrder(context.Background(), 10)
	assert.False(t, outcome.Synced)
	assert.NotEmpty(t, outcome.Reason)
	assert.True(t, store.orders[10].SyncMeta.Dirty, "a failed instant push leaves the order queued")
}

func TestSyncOrderUnknownOrder(t *testing.T) {
	s := NewOrderSyncer(newFakeOrderStore(), &fakeOrderAPI{}, zap.NewNop())

	outcome := s.SyncOrder(context.Background(), 999)
	assert.False(t, outcome.Synced)
	assert.Equal(t, "order not found", outcome.Reason)
}

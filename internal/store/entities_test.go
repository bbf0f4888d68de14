package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database per test. The shared-cache
// DSN keeps every pooled connection on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Customer{}, &model.Item{},
		&model.Order{}, &model.OrderLine{},
	))
	return db
}

func TestCustomerCreateFromRemoteStaysClean(t *testing.T) {
	db := newTestDB(t)
	store := NewCustomerStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	err := store.CreateFromRemote(ctx, &model.Customer{
		Name:     "Fresh Fields Market",
		Email:    "orders@freshfields.test",
		IsActive: true,
		SyncMeta: model.SyncMeta{ExternalID: "QB-C1", LastSyncedAt: &now, Dirty: false},
	})
	require.NoError(t, err)

	got, err := store.FindByEmail(ctx, "orders@freshfields.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.SyncMeta.Dirty,
		"record pulled from QuickBooks must persist clean or it gets re-pushed outbound")
	assert.Equal(t, "QB-C1", got.SyncMeta.ExternalID)

	dirty, err := store.ListDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestCustomerCreateFromRemoteKeepsInactiveFlag(t *testing.T) {
	db := newTestDB(t)
	store := NewCustomerStore(db)
	ctx := context.Background()

	err := store.CreateFromRemote(ctx, &model.Customer{
		Name:     "Closed Grocer",
		Email:    "closed@grocer.test",
		IsActive: false,
		SyncMeta: model.SyncMeta{ExternalID: "QB-C2"},
	})
	require.NoError(t, err)

	got, err := store.FindByEmail(ctx, "closed@grocer.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)
}

func TestItemCreateFromRemoteStaysClean(t *testing.T) {
	db := newTestDB(t)
	store := NewItemStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	err := store.CreateFromRemote(ctx, &model.Item{
		Name:      "Hass Avocado",
		SKU:       "AVO-HASS",
		UnitPrice: 2.50,
		IsActive:  true,
		SyncMeta:  model.SyncMeta{ExternalID: "QB-I7", LastSyncedAt: &now, Dirty: false},
	})
	require.NoError(t, err)

	got, err := store.FindBySKU(ctx, "AVO-HASS")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.SyncMeta.Dirty)
	assert.True(t, got.SyncMeta.Synced())

	dirty, err := store.ListDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestCustomerMarkSyncedClearsDirty(t *testing.T) {
	db := newTestDB(t)
	store := NewCustomerStore(db)
	ctx := context.Background()

	customer := model.Customer{
		Name:     "Valley Produce Co",
		Email:    "buyer@valleyproduce.test",
		IsActive: true,
		SyncMeta: model.SyncMeta{Dirty: true},
	}
	require.NoError(t, db.Create(&customer).Error)

	dirty, err := store.ListDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)

	syncedAt := time.Now().UTC()
	require.NoError(t, store.MarkSynced(ctx, customer.ID, "QB-C9", syncedAt))

	got, err := store.FindByEmail(ctx, "buyer@valleyproduce.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.SyncMeta.Synced())
	assert.Equal(t, "QB-C9", got.SyncMeta.ExternalID)
	require.NotNil(t, got.SyncMeta.LastSyncedAt)
}

func TestOrderListDirtyPreloadsRelations(t *testing.T) {
	db := newTestDB(t)
	store := NewOrderStore(db)
	ctx := context.Background()

	customer := model.Customer{
		Name:     "Valley Produce Co",
		Email:    "buyer@valleyproduce.test",
		IsActive: true,
		SyncMeta: model.SyncMeta{ExternalID: "QB-C1"},
	}
	require.NoError(t, db.Create(&customer).Error)
	item := model.Item{
		Name:      "Hass Avocado",
		SKU:       "AVO-HASS",
		UnitPrice: 2.50,
		IsActive:  true,
		SyncMeta:  model.SyncMeta{ExternalID: "QB-I7"},
	}
	require.NoError(t, db.Create(&item).Error)
	order := model.Order{
		OrderNumber: "ORD-TEST0001",
		CustomerID:  customer.ID,
		Status:      model.OrderStatusOpen,
		OrderDate:   time.Now().UTC(),
		Total:       10.0,
		Lines: []model.OrderLine{
			{ItemID: item.ID, Quantity: 4, UnitPrice: 2.50},
		},
		SyncMeta: model.SyncMeta{Dirty: true},
	}
	require.NoError(t, db.Create(&order).Error)

	dirty, err := store.ListDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.NotNil(t, dirty[0].Customer)
	assert.Equal(t, "QB-C1", dirty[0].Customer.SyncMeta.ExternalID)
	require.Len(t, dirty[0].Lines, 1)
	require.NotNil(t, dirty[0].Lines[0].Item)
	assert.Equal(t, "AVO-HASS", dirty[0].Lines[0].Item.SKU)
}

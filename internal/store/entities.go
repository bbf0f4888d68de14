package store

import (
	"context"
	"errors"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/prometheus"
	"gorm.io/gorm"
)

// syncFields is the column set the engine is allowed to touch on domain
// records. Business fields stay owned by the CRUD layer.
func syncFields(externalID string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"external_id":    externalID,
		"last_synced_at": at,
		"dirty":          false,
	}
}

// CustomerStore provides the customer rows the sync engine works on.
type CustomerStore struct {
	db *gorm.DB
}

// NewCustomerStore creates a customer store
func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// ListDirty returns customers with local changes waiting to be pushed
func (s *CustomerStore) ListDirty(ctx context.Context) ([]model.Customer, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var customers []model.Customer
	err := s.db.WithContext(ctx).Where("dirty = ?", true).Order("id").Find(&customers).Error
	return customers, err
}

// FindByEmail looks a customer up by its natural key. Returns nil when no
// match exists.
func (s *CustomerStore) FindByEmail(ctx context.Context, email string) (*model.Customer, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var customer model.Customer
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateFromRemote inserts a customer discovered in QuickBooks. It arrives
// already synced, so dirty stays false.
func (s *CustomerStore) CreateFromRemote(ctx context.Context, customer *model.Customer) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return s.db.WithContext(ctx).Create(customer).Error
}

// UpdateFromRemote writes provider-owned fields onto a clean local record
func (s *CustomerStore) UpdateFromRemote(ctx context.Context, customer *model.Customer) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Save(customer).Error
}

// SetExternalID records the provider identifier without touching anything
// else. Used when the local copy is dirty and local fields must win.
func (s *CustomerStore) SetExternalID(ctx context.Context, id uint, externalID string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.Customer{}).Where("id = ?", id).
		Update("external_id", externalID).Error
}

// MarkSynced commits a successful push: stores the external id, stamps the
// sync time, and clears dirty.
func (s *CustomerStore) MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.Customer{}).Where("id = ?", id).
		Updates(syncFields(externalID, at)).Error
}

// ItemStore provides the item rows the sync engine works on.
type ItemStore struct {
	db *gorm.DB
}

// NewItemStore creates an item store
func NewItemStore(db *gorm.DB) *ItemStore {
	return &ItemStore{db: db}
}

// ListDirty returns items with local changes waiting to be pushed
func (s *ItemStore) ListDirty(ctx context.Context) ([]model.Item, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var items []model.Item
	err := s.db.WithContext(ctx).Where("dirty = ?", true).Order("id").Find(&items).Error
	return items, err
}

// FindBySKU looks an item up by its natural key. Returns nil when no match
// exists.
func (s *ItemStore) FindBySKU(ctx context.Context, sku string) (*model.Item, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var item model.Item
	err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateFromRemote inserts an item discovered in QuickBooks
func (s *ItemStore) CreateFromRemote(ctx context.Context, item *model.Item) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return s.db.WithContext(ctx).Create(item).Error
}

// UpdateFromRemote writes provider-owned fields onto a clean local record
func (s *ItemStore) UpdateFromRemote(ctx context.Context, item *model.Item) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Save(item).Error
}

// SetExternalID records the provider identifier without touching anything else
func (s *ItemStore) SetExternalID(ctx context.Context, id uint, externalID string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.Item{}).Where("id = ?", id).
		Update("external_id", externalID).Error
}

// MarkSynced commits a successful push
func (s *ItemStore) MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.Item{}).Where("id = ?", id).
		Updates(syncFields(externalID, at)).Error
}

// OrderStore provides the order rows the sync engine works on.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore creates an order store
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// ListDirty returns orders waiting to be pushed, with the customer and line
// items loaded so eligibility can be decided without further queries.
func (s *OrderStore) ListDirty(ctx context.Context) ([]model.Order, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Lines").
		Preload("Lines.Item").
		Where("dirty = ?", true).Order("id").Find(&orders).Error
	return orders, err
}

// Load returns one order with customer and lines preloaded. Returns nil
// when the order does not exist.
func (s *OrderStore) Load(ctx context.Context, id uint) (*model.Order, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Lines").
		Preload("Lines.Item").
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkSynced commits a successful push
func (s *OrderStore) MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).
		Updates(syncFields(externalID, at)).Error
}

// PriceRuleStore provides the price rule rows the sync engine works on.
type PriceRuleStore struct {
	db *gorm.DB
}

// NewPriceRuleStore creates a price rule store
func NewPriceRuleStore(db *gorm.DB) *PriceRuleStore {
	return &PriceRuleStore{db: db}
}

// ListDirty returns price rules waiting to be pushed, with their item loaded
func (s *PriceRuleStore) ListDirty(ctx context.Context) ([]model.PriceRule, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var rules []model.PriceRule
	err := s.db.WithContext(ctx).Preload("Item").Where("dirty = ?", true).Order("id").Find(&rules).Error
	return rules, err
}

// MarkSynced commits a successful push
func (s *PriceRuleStore) MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Model(&model.PriceRule{}).Where("id = ?", id).
		Updates(syncFields(externalID, at)).Error
}

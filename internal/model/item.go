package model

import (
	"time"

	"gorm.io/gorm"
)

// Item represents a sellable produce item (master data)
type Item struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	SKU         string         `json:"sku" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string         `json:"description" gorm:"type:text"`
	UnitPrice   float64        `json:"unit_price" gorm:"not null"`
	Category    string         `json:"category" gorm:"type:varchar(100)"`
	IsActive    bool           `json:"is_active"`
	SyncMeta    SyncMeta       `json:"sync" gorm:"embedded"`
	Lots        []Lot          `json:"lots,omitempty" gorm:"foreignKey:ItemID"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Lot represents a received lot of an item. Lots exist for traceability and
// label printing only; QuickBooks has no lot concept, so they never sync.
type Lot struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	LotNumber   string         `json:"lot_number" gorm:"type:varchar(100);uniqueIndex;not null"`
	ItemID      uint           `json:"item_id" gorm:"index;not null"`
	Quantity    float64        `json:"quantity"`
	HarvestDate *time.Time     `json:"harvest_date"`
	ExpiryDate  *time.Time     `json:"expiry_date"`
	Vendor      string         `json:"vendor" gorm:"type:varchar(255)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// PriceRule represents a selling-price revision for an item. Dirty rules are
// pushed to QuickBooks as a sparse price update on the linked item.
type PriceRule struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	ItemID        uint           `json:"item_id" gorm:"index;not null"`
	Item          *Item          `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	UnitPrice     float64        `json:"unit_price" gorm:"not null"`
	EffectiveDate time.Time      `json:"effective_date"`
	Note          string         `json:"note" gorm:"type:varchar(255)"`
	SyncMeta      SyncMeta       `json:"sync" gorm:"embedded"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

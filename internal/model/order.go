package model

import (
	"time"

	"gorm.io/gorm"
)

// Order status values
const (
	OrderStatusOpen      = "open"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// Order represents a customer order. Orders are pushed to QuickBooks as
// invoices once the customer and every line item are themselves synced.
type Order struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	OrderNumber string         `json:"order_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	CustomerID  uint           `json:"customer_id" gorm:"index;not null"`
	Customer    *Customer      `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Status      string         `json:"status" gorm:"type:varchar(20);default:'open'"`
	OrderDate   time.Time      `json:"order_date"`
	Total       float64        `json:"total"`
	Lines       []OrderLine    `json:"lines" gorm:"foreignKey:OrderID"`
	SyncMeta    SyncMeta       `json:"sync" gorm:"embedded"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// OrderLine is a single item line on an order
type OrderLine struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	OrderID   uint     `json:"order_id" gorm:"index;not null"`
	ItemID    uint     `json:"item_id" gorm:"index;not null"`
	Item      *Item    `json:"item,omitempty" gorm:"foreignKey:ItemID"`
	LotID     *uint    `json:"lot_id,omitempty" gorm:"index"`
	Quantity  float64  `json:"quantity" gorm:"not null"`
	UnitPrice float64  `json:"unit_price" gorm:"not null"`
}

// LineTotal returns the extended amount for the line
func (l *OrderLine) LineTotal() float64 {
	return l.Quantity * l.UnitPrice
}

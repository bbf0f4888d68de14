package model

import (
	"time"
)

// QuickBooksCredential holds the OAuth tokens for the connected QuickBooks
// company. There is at most one row: it is created on a successful OAuth
// callback, rewritten by every token refresh, and cleared on disconnect.
type QuickBooksCredential struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	RealmID        string    `json:"realm_id" gorm:"type:varchar(64)"`
	AccessToken    string    `json:"-" gorm:"type:text"`
	RefreshToken   string    `json:"-" gorm:"type:text"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	Connected      bool      `json:"connected" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires before now+margin
func (c *QuickBooksCredential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(c.TokenExpiresAt)
}

// Package store holds the GORM-backed persistence used by the sync engine.
// Each store is a thin struct over *gorm.DB; the engine depends on small
// interfaces these satisfy, so tests can swap in fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/prometheus"
	"gorm.io/gorm"
)

// CredentialStore persists the single QuickBooks credential row.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a credential store
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Load returns the credential row, or nil when no company has ever been
// connected.
func (s *CredentialStore) Load(ctx context.Context) (*model.QuickBooksCredential, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var cred model.QuickBooksCredential
	err := s.db.WithContext(ctx).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Save inserts or updates the credential row
func (s *CredentialStore) Save(ctx context.Context, cred *model.QuickBooksCredential) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.WithContext(ctx).Save(cred).Error
}

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

// stubRunHistory returns a fixed last-success run.
type stubRunHistory struct {
	last *model.SyncRun
	err  error
}

func (s *stubRunHistory) LastSuccess(_ context.Context, _ model.EntityType) (*model.SyncRun, error) {
	return s.last, s.err
}

// fakeCustomerStore is an in-memory CustomerStore keyed by id.
type fakeCustomerStore struct {
	customers map[uint]*model.Customer
	nextID    uint

	markSyncedErr error
}

var _ CustomerStore = (*fakeCustomerStore)(nil)

func newFakeCustomerStore(customers ...*model.Customer) *fakeCustomerStore {
	s := &fakeCustomerStore{customers: make(map[uint]*model.Customer), nextID: 100}
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return s
}

func (s *fakeCustomerStore) ListDirty(_ context.Context) ([]model.Customer, error) {
	var out []model.Customer
	for _, c := range s.customers {
		if c.SyncMeta.Dirty {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCustomerStore) FindByEmail(_ context.Context, email string) (*model.Customer, error) {
	for _, c := range s.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeCustomerStore) CreateFromRemote(_ context.Context, customer *model.Customer) error {
	s.nextID++
	customer.ID = s.nextID
	cp := *customer
	s.customers[cp.ID] = &cp
	return nil
}

func (s *fakeCustomerStore) UpdateFromRemote(_ context.Context, customer *model.Customer) error {
	cp := *customer
	s.customers[cp.ID] = &cp
	return nil
}

func (s *fakeCustomerStore) SetExternalID(_ context.Context, id uint, externalID string) error {
	s.customers[id].SyncMeta.ExternalID = externalID
	return nil
}

func (s *fakeCustomerStore) MarkSynced(_ context.Context, id uint, externalID string, at time.Time) error {
	if s.markSyncedErr != nil {
		return s.markSyncedErr
	}
	c := s.customers[id]
	c.SyncMeta.ExternalID = externalID
	c.SyncMeta.LastSyncedAt = &at
	c.SyncMeta.Dirty = false
	return nil
}

// fakeCustomerAPI records provider calls.
type fakeCustomerAPI struct {
	remote []quickbooks.Customer

	createErr error
	updateErr error
	listErr   error

	creates     int
	gets        int
	updates     int
	lists       int
	lastCreated *quickbooks.Customer
	lastUpdated *quickbooks.Customer
	sinceArg    time.Time
}

var _ CustomerAPI = (*fakeCustomerAPI)(nil)

func (f *fakeCustomerAPI) CustomersUpdatedSince(_ context.Context, since time.Time) ([]quickbooks.Customer, error) {
	f.lists++
	f.sinceArg = since
	return f.remote, f.listErr
}

func (f *fakeCustomerAPI) GetCustomer(_ context.Context, id string) (*quickbooks.Customer, error) {
	f.gets++
	return &quickbooks.Customer{ID: id, SyncToken: "5"}, nil
}

func (f *fakeCustomerAPI) CreateCustomer(_ context.Context, cust *quickbooks.Customer) (*quickbooks.Customer, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastCreated = cust
	created := *cust
	created.ID = "QB-NEW"
	return &created, nil
}

func (f *fakeCustomerAPI) UpdateCustomer(_ context.Context, cust *quickbooks.Customer) (*quickbooks.Customer, error) {
	f.updates++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.lastUpdated = cust
	return cust, nil
}

func dirtyCustomer(id uint, email, externalID string) *model.Customer {
	return &model.Customer{
		ID:       id,
		Name:     "Acme Farms",
		Email:    email,
		IsActive: true,
		SyncMeta: model.SyncMeta{ExternalID: externalID, Dirty: true},
	}
}

func TestCustomerOutboundCreatesNewRecord(t *testing.T) {
	store := newFakeCustomerStore(dirtyCustomer(1, "buyer@acme.test", ""))
	api := &fakeCustomerAPI{}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 0, api.updates)

	c := store.customers[1]
	assert.Equal(t, "QB-NEW", c.SyncMeta.ExternalID)
	assert.False(t, c.SyncMeta.Dirty)
	require.NotNil(t, c.SyncMeta.LastSyncedAt)
}

func TestCustomerOutboundUpdateFetchesSyncToken(t *testing.T) {
	store := newFakeCustomerStore(dirtyCustomer(1, "buyer@acme.test", "QB-77"))
	api := &fakeCustomerAPI{}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, api.gets)
	assert.Equal(t, 1, api.updates)
	require.NotNil(t, api.lastUpdated)
	assert.Equal(t, "QB-77", api.lastUpdated.ID)
	assert.Equal(t, "5", api.lastUpdated.SyncToken, "update must carry the fetched SyncToken")
	assert.False(t, store.customers[1].SyncMeta.Dirty)
}

func TestCustomerOutboundFailureKeepsRecordDirty(t *testing.T) {
	store := newFakeCustomerStore(
		dirtyCustomer(1, "a@acme.test", ""),
		dirtyCustomer(2, "b@acme.test", ""),
	)
	api := &fakeCustomerAPI{}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	api.createErr = &quickbooks.APIError{StatusCode: 400, Code: "6240", Message: "Duplicate Name Exists Error"}

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err, "per-record faults must not abort the run")
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, model.RunStatusFailed, res.Status())
	for _, c := range store.customers {
		assert.True(t, c.SyncMeta.Dirty, "failed records must stay dirty for the next run")
	}
}

func TestCustomerOutboundAbortsOnReauthRequired(t *testing.T) {
	store := newFakeCustomerStore(
		dirtyCustomer(1, "a@acme.test", ""),
		dirtyCustomer(2, "b@acme.test", ""),
	)
	api := &fakeCustomerAPI{createErr: quickbooks.ErrReauthRequired}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	_, err := s.SyncOutbound(context.Background())
	require.ErrorIs(t, err, quickbooks.ErrReauthRequired)
	assert.Equal(t, 1, api.creates, "credential failure must abort the batch")
}

func TestCustomerOutboundNothingDirtyIsIdempotent(t *testing.T) {
	clean := dirtyCustomer(1, "a@acme.test", "QB-1")
	clean.SyncMeta.Dirty = false
	store := newFakeCustomerStore(clean)
	api := &fakeCustomerAPI{}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Zero(t, api.creates+api.gets+api.updates, "clean records must not touch the provider")
}

func TestCustomerInboundCreatesUnknownRemote(t *testing.T) {
	store := newFakeCustomerStore()
	api := &fakeCustomerAPI{remote: []quickbooks.Customer{{
		ID:               "QB-9",
		DisplayName:      "Bayside Grocers",
		PrimaryEmailAddr: &quickbooks.EmailAddress{Address: "orders@bayside.test"},
	}}}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	local, err := store.FindByEmail(context.Background(), "orders@bayside.test")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, "QB-9", local.SyncMeta.ExternalID)
	assert.False(t, local.SyncMeta.Dirty, "records created from the provider arrive already synced")
}

func TestCustomerInboundLocalWinsOnDirtyRecord(t *testing.T) {
	local := dirtyCustomer(1, "buyer@acme.test", "")
	local.Name = "Acme Farms (renamed locally)"
	store := newFakeCustomerStore(local)
	api := &fakeCustomerAPI{remote: []quickbooks.Customer{{
		ID:               "QB-1",
		DisplayName:      "Acme Farms (renamed remotely)",
		PrimaryEmailAddr: &quickbooks.EmailAddress{Address: "buyer@acme.test"},
	}}}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	got := store.customers[1]
	assert.Equal(t, "Acme Farms (renamed locally)", got.Name, "dirty local fields must win")
	assert.Equal(t, "QB-1", got.SyncMeta.ExternalID, "the identifier still links the records")
	assert.True(t, got.SyncMeta.Dirty, "the pending local change still needs pushing")
}

func TestCustomerInboundAppliesRemoteToCleanRecord(t *testing.T) {
	local := dirtyCustomer(1, "buyer@acme.test", "QB-1")
	local.SyncMeta.Dirty = false
	store := newFakeCustomerStore(local)
	api := &fakeCustomerAPI{remote: []quickbooks.Customer{{
		ID:               "QB-1",
		DisplayName:      "Acme Farms Inc",
		PrimaryEmailAddr: &quickbooks.EmailAddress{Address: "buyer@acme.test"},
		PrimaryPhone:     &quickbooks.TelephoneNumber{FreeFormNumber: "555-0100"},
	}}}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	got := store.customers[1]
	assert.Equal(t, "Acme Farms Inc", got.Name)
	assert.Equal(t, "555-0100", got.Phone)
	assert.False(t, got.SyncMeta.Dirty)
}

func TestCustomerInboundSkipsRemoteWithoutEmail(t *testing.T) {
	store := newFakeCustomerStore()
	api := &fakeCustomerAPI{remote: []quickbooks.Customer{{ID: "QB-3", DisplayName: "Walk-in"}}}
	s := NewCustomerSyncer(store, api, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Succeeded)
	assert.Empty(t, store.customers)
}

func TestCustomerInboundWatermarkFromLastSuccess(t *testing.T) {
	started := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	api := &fakeCustomerAPI{}
	s := NewCustomerSyncer(newFakeCustomerStore(), api,
		&stubRunHistory{last: &model.SyncRun{StartedAt: started}}, zap.NewNop())

	_, err := s.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, started, api.sinceArg)

	// Without a prior success the pull starts from the epoch.
	api2 := &fakeCustomerAPI{}
	s2 := NewCustomerSyncer(newFakeCustomerStore(), api2, &stubRunHistory{}, zap.NewNop())
	_, err = s2.SyncInbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), api2.sinceArg)
}

func TestCustomerOutboundCancelledContextStops(t *testing.T) {
	store := newFakeCustomerStore(dirtyCustomer(1, "a@acme.test", ""))
	s := NewCustomerSyncer(store, &fakeCustomerAPI{}, &stubRunHistory{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SyncOutbound(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCustomerOutboundMarkSyncedErrorCountsAsFailed(t *testing.T) {
	store := newFakeCustomerStore(dirtyCustomer(1, "a@acme.test", ""))
	store.markSyncedErr = errors.New("db gone")
	s := NewCustomerSyncer(store, &fakeCustomerAPI{}, &stubRunHistory{}, zap.NewNop())

	res, err := s.SyncOutbound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Succeeded)
}

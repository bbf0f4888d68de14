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

// CustomerStore is the customer persistence the module needs. Satisfied by
// *store.CustomerStore.
type CustomerStore interface {
	ListDirty(ctx context.Context) ([]model.Customer, error)
	FindByEmail(ctx context.Context, email string) (*model.Customer, error)
	CreateFromRemote(ctx context.Context, customer *model.Customer) error
	UpdateFromRemote(ctx context.Context, customer *model.Customer) error
	SetExternalID(ctx context.Context, id uint, externalID string) error
	MarkSynced(ctx context.Context, id uint, externalID string, at time.Time) error
}

// CustomerAPI is the provider surface the module needs. Satisfied by
// *quickbooks.Client.
type CustomerAPI interface {
	CustomersUpdatedSince(ctx context.Context, since time.Time) ([]quickbooks.Customer, error)
	GetCustomer(ctx context.Context, id string) (*quickbooks.Customer, error)
	CreateCustomer(ctx context.Context, cust *quickbooks.Customer) (*quickbooks.Customer, error)
	UpdateCustomer(ctx context.Context, cust *quickbooks.Customer) (*quickbooks.Customer, error)
}

// CustomerSyncer maps local customers to QuickBooks customers, matched by
// email. Outbound pushes dirty records; inbound pulls provider changes and
// applies them with a local-wins policy.
type CustomerSyncer struct {
	store CustomerStore
	api   CustomerAPI
	runs  RunHistory
	log   *zap.Logger
	now   func() time.Time
}

// NewCustomerSyncer creates the customer sync module
func NewCustomerSyncer(store CustomerStore, api CustomerAPI, runs RunHistory, log *zap.Logger) *CustomerSyncer {
	return &CustomerSyncer{store: store, api: api, runs: runs, log: log, now: time.Now}
}

func (s *CustomerSyncer) EntityType() model.EntityType { return model.EntityCustomer }

// SyncOutbound pushes every dirty customer. Per-record failures leave the
// record dirty for the next run; only a credential failure aborts the batch.
func (s *CustomerSyncer) SyncOutbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityCustomer)

	dirty, err := s.store.ListDirty(ctx)
	if err != nil {
		return res, fmt.Errorf("list dirty customers: %w", err)
	}

	for i := range dirty {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		customer := &dirty[i]
		res.Processed++

		externalID, err := s.pushOne(ctx, customer)
		if err != nil {
			if errors.Is(err, quickbooks.ErrReauthRequired) {
				return res, err
			}
			prometheus.RecordSyncRecord("customer", "outbound", "failed")
			s.log.Warn("Customer push failed",
				zap.Uint("customer_id", customer.ID),
				zap.Error(err))
			res.fail(customer.ID, err.Error())
			continue
		}

		if err := s.store.MarkSynced(ctx, customer.ID, externalID, s.now().UTC()); err != nil {
			res.fail(customer.ID, fmt.Sprintf("mark synced: %v", err))
			continue
		}
		prometheus.RecordSyncRecord("customer", "outbound", "success")
		res.Succeeded++
	}

	return res, nil
}

// pushOne creates or updates one customer in QuickBooks and returns its
// external id. The provider call happens outside any store transaction; the
// state change is committed afterwards by the caller.
func (s *CustomerSyncer) pushOne(ctx context.Context, customer *model.Customer) (string, error) {
	payload := customerPayload(customer)

	if customer.SyncMeta.ExternalID == "" {
		created, err := s.api.CreateCustomer(ctx, payload)
		if err != nil {
			return "", err
		}
		return created.ID, nil
	}

	// Updates need the provider's current SyncToken.
	current, err := s.api.GetCustomer(ctx, customer.SyncMeta.ExternalID)
	if err != nil {
		return "", err
	}
	payload.ID = current.ID
	payload.SyncToken = current.SyncToken
	updated, err := s.api.UpdateCustomer(ctx, payload)
	if err != nil {
		return "", err
	}
	return updated.ID, nil
}

// SyncInbound pulls customers changed in QuickBooks since the last fully
// successful run and matches them to local records by email. Local dirty
// records only receive the external id: local fields win.
func (s *CustomerSyncer) SyncInbound(ctx context.Context) (*SyncResult, error) {
	res := newResult(model.EntityCustomer)

	since, err := s.watermark(ctx)
	if err != nil {
		return res, err
	}

	remote, err := s.api.CustomersUpdatedSince(ctx, since)
	if err != nil {
		return res, err
	}

	for i := range remote {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rc := &remote[i]
		res.Processed++

		if rc.PrimaryEmailAddr == nil || rc.PrimaryEmailAddr.Address == "" {
			res.skip(0, fmt.Sprintf("provider customer %s has no email, cannot match", rc.ID))
			continue
		}

		local, err := s.store.FindByEmail(ctx, rc.PrimaryEmailAddr.Address)
		if err != nil {
			res.fail(0, fmt.Sprintf("lookup by email: %v", err))
			continue
		}

		switch {
		case local == nil:
			fresh := customerFromRemote(rc, s.now().UTC())
			if err := s.store.CreateFromRemote(ctx, fresh); err != nil {
				res.fail(0, fmt.Sprintf("create local customer: %v", err))
				continue
			}
		case local.SyncMeta.Dirty:
			// Local changes pending: keep them, just record the identifier.
			if err := s.store.SetExternalID(ctx, local.ID, rc.ID); err != nil {
				res.fail(local.ID, fmt.Sprintf("set external id: %v", err))
				continue
			}
		default:
			applyRemoteCustomer(local, rc, s.now().UTC())
			if err := s.store.UpdateFromRemote(ctx, local); err != nil {
				res.fail(local.ID, fmt.Sprintf("apply remote customer: %v", err))
				continue
			}
		}
		prometheus.RecordSyncRecord("customer", "inbound", "success")
		res.Succeeded++
	}

	return res, nil
}

func (s *CustomerSyncer) watermark(ctx context.Context) (time.Time, error) {
	last, err := s.runs.LastSuccess(ctx, model.EntityCustomer)
	if err != nil {
		return time.Time{}, fmt.Errorf("load sync watermark: %w", err)
	}
	if last == nil {
		return time.Unix(0, 0).UTC(), nil
	}
	return last.StartedAt, nil
}

// customerPayload maps a local customer onto the QuickBooks shape.
func customerPayload(c *model.Customer) *quickbooks.Customer {
	active := c.IsActive
	return &quickbooks.Customer{
		DisplayName:      c.Name,
		PrimaryEmailAddr: &quickbooks.EmailAddress{Address: c.Email},
		PrimaryPhone:     &quickbooks.TelephoneNumber{FreeFormNumber: c.Phone},
		BillAddr: &quickbooks.PhysicalAddress{
			Line1:                  c.Address,
			City:                   c.City,
			CountrySubDivisionCode: c.State,
			PostalCode:             c.Zip,
		},
		Active: &active,
	}
}

// customerFromRemote builds a local record for a provider customer that has
// no local counterpart. It arrives already synced.
func customerFromRemote(rc *quickbooks.Customer, at time.Time) *model.Customer {
	c := &model.Customer{
		Name:     rc.DisplayName,
		Email:    rc.PrimaryEmailAddr.Address,
		IsActive: rc.Active == nil || *rc.Active,
		SyncMeta: model.SyncMeta{
			ExternalID:   rc.ID,
			LastSyncedAt: &at,
			Dirty:        false,
		},
	}
	applyRemoteContact(c, rc)
	return c
}

// applyRemoteCustomer overwrites provider-owned fields on a clean local
// record.
func applyRemoteCustomer(local *model.Customer, rc *quickbooks.Customer, at time.Time) {
	local.Name = rc.DisplayName
	if rc.Active != nil {
		local.IsActive = *rc.Active
	}
	applyRemoteContact(local, rc)
	local.SyncMeta.ExternalID = rc.ID
	local.SyncMeta.LastSyncedAt = &at
	local.SyncMeta.Dirty = false
}

func applyRemoteContact(local *model.Customer, rc *quickbooks.Customer) {
	if rc.PrimaryPhone != nil {
		local.Phone = rc.PrimaryPhone.FreeFormNumber
	}
	if rc.BillAddr != nil {
		local.Address = rc.BillAddr.Line1
		local.City = rc.BillAddr.City
		local.State = rc.BillAddr.CountrySubDivisionCode
		local.Zip = rc.BillAddr.PostalCode
	}
}

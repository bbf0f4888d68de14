package quickbooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/covxx/Paleta-sub000/prometheus"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 1 * time.Second
)

// TokenSource supplies bearer tokens for API calls. Satisfied by
// *TokenManager.
type TokenSource interface {
	GetValidToken(ctx context.Context) (Bearer, error)
	Invalidate()
}

// Client issues authenticated calls against the QuickBooks Online API.
// One retry policy applies to every call: a 401 invalidates the token and
// retries exactly once with a fresh one; 429 and 5xx retry with exponential
// backoff (honoring Retry-After); 400/403 fail immediately with the parsed
// fault so the caller can record a per-record error.
type Client struct {
	tokens       TokenSource
	http         *http.Client
	baseURL      string
	minorVersion string
	maxAttempts  int
	backoffBase  time.Duration
	log          *zap.Logger

	// sleep is injected in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client over the given token source.
func NewClient(tokens TokenSource, cfg config.QuickBooksConfig, log *zap.Logger) *Client {
	return &Client{
		tokens:       tokens,
		http:         &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.APIHost(),
		minorVersion: cfg.MinorVersion,
		maxAttempts:  defaultMaxAttempts,
		backoffBase:  defaultBackoffBase,
		log:          log,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// --- Customers ---

// QueryCustomers runs a Customer query with an optional WHERE clause.
func (c *Client) QueryCustomers(ctx context.Context, where string) ([]Customer, error) {
	var env queryEnvelope
	if err := c.query(ctx, "query_customer", "Customer", where, &env); err != nil {
		return nil, err
	}
	return env.QueryResponse.Customer, nil
}

// CustomersUpdatedSince returns customers changed in QuickBooks after the
// given time.
func (c *Client) CustomersUpdatedSince(ctx context.Context, since time.Time) ([]Customer, error) {
	return c.QueryCustomers(ctx, updatedSinceClause(since))
}

// GetCustomer reads a single customer, including its current SyncToken.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var env entityEnvelope
	if err := c.do(ctx, "get_customer", http.MethodGet, "/customer/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Customer, nil
}

// CreateCustomer creates a customer and returns it with its assigned Id.
func (c *Client) CreateCustomer(ctx context.Context, cust *Customer) (*Customer, error) {
	var env entityEnvelope
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customer", nil, cust, &env); err != nil {
		return nil, err
	}
	return env.Customer, nil
}

// UpdateCustomer performs a sparse update. The passed customer must carry
// the current SyncToken.
func (c *Client) UpdateCustomer(ctx context.Context, cust *Customer) (*Customer, error) {
	cust.Sparse = true
	var env entityEnvelope
	if err := c.do(ctx, "update_customer", http.MethodPost, "/customer", nil, cust, &env); err != nil {
		return nil, err
	}
	return env.Customer, nil
}

// --- Items ---

// QueryItems runs an Item query with an optional WHERE clause.
func (c *Client) QueryItems(ctx context.Context, where string) ([]Item, error) {
	var env queryEnvelope
	if err := c.query(ctx, "query_item", "Item", where, &env); err != nil {
		return nil, err
	}
	return env.QueryResponse.Item, nil
}

// ItemsUpdatedSince returns items changed in QuickBooks after the given time.
func (c *Client) ItemsUpdatedSince(ctx context.Context, since time.Time) ([]Item, error) {
	return c.QueryItems(ctx, updatedSinceClause(since))
}

// GetItem reads a single item, including its current SyncToken.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	var env entityEnvelope
	if err := c.do(ctx, "get_item", http.MethodGet, "/item/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Item, nil
}

// CreateItem creates an item and returns it with its assigned Id.
func (c *Client) CreateItem(ctx context.Context, item *Item) (*Item, error) {
	var env entityEnvelope
	if err := c.do(ctx, "create_item", http.MethodPost, "/item", nil, item, &env); err != nil {
		return nil, err
	}
	return env.Item, nil
}

// UpdateItem performs a sparse update. The passed item must carry the
// current SyncToken.
func (c *Client) UpdateItem(ctx context.Context, item *Item) (*Item, error) {
	item.Sparse = true
	var env entityEnvelope
	if err := c.do(ctx, "update_item", http.MethodPost, "/item", nil, item, &env); err != nil {
		return nil, err
	}
	return env.Item, nil
}

// --- Invoices ---

// CreateInvoice creates an invoice and returns it with its assigned Id.
func (c *Client) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	var env entityEnvelope
	if err := c.do(ctx, "create_invoice", http.MethodPost, "/invoice", nil, inv, &env); err != nil {
		return nil, err
	}
	return env.Invoice, nil
}

// GetInvoice reads a single invoice, including its current SyncToken.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var env entityEnvelope
	if err := c.do(ctx, "get_invoice", http.MethodGet, "/invoice/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Invoice, nil
}

// UpdateInvoice performs a full update. The passed invoice must carry the
// current SyncToken.
func (c *Client) UpdateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	var env entityEnvelope
	if err := c.do(ctx, "update_invoice", http.MethodPost, "/invoice", nil, inv, &env); err != nil {
		return nil, err
	}
	return env.Invoice, nil
}

// --- internals ---

// updatedSinceClause builds the incremental-pull WHERE clause.
func updatedSinceClause(since time.Time) string {
	return fmt.Sprintf("Metadata.LastUpdatedTime > '%s'", since.UTC().Format("2006-01-02T15:04:05-07:00"))
}

// EscapeQueryValue escapes a literal for use in a query WHERE clause.
func EscapeQueryValue(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}

func (c *Client) query(ctx context.Context, operation, entity, where string, out any) error {
	stmt := "SELECT * FROM " + entity
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " MAXRESULTS 1000"
	return c.do(ctx, operation, http.MethodGet, "/query", url.Values{"query": {stmt}}, nil, out)
}

// do runs one API call under the shared retry policy.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", operation, err)
		}
	}

	var retried401 bool
	for attempt := 1; ; attempt++ {
		bearer, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return err
		}

		req, err := c.newRequest(ctx, method, path, query, body, bearer)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			prometheus.RecordQBRequest(operation, "network_error", time.Since(start))
			if attempt >= c.maxAttempts {
				return &TransientError{Cause: err}
			}
			prometheus.RecordQBRetry("network")
			if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
				return serr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		prometheus.RecordQBRequest(operation, strconv.Itoa(resp.StatusCode), time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return &TransientError{Cause: readErr}
			}
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					return fmt.Errorf("decode %s response: %w", operation, err)
				}
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			// One forced refresh per call; a second 401 means the new token
			// is rejected too.
			if retried401 {
				return ErrReauthRequired
			}
			retried401 = true
			attempt--
			c.tokens.Invalidate()
			prometheus.RecordQBRetry("unauthorized")
			c.log.Warn("QuickBooks returned 401, refreshing token and retrying",
				zap.String("operation", operation))
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= c.maxAttempts {
				return &TransientError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("rate limited after %d attempts", attempt)}
			}
			delay := c.backoff(attempt)
			if ra := retryAfter(resp); ra > 0 {
				delay = ra
			}
			prometheus.RecordQBRetry("rate_limited")
			c.log.Warn("QuickBooks rate limited, backing off",
				zap.String("operation", operation),
				zap.Duration("delay", delay))
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
			continue

		case resp.StatusCode >= 500:
			if attempt >= c.maxAttempts {
				return &TransientError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("server error after %d attempts", attempt)}
			}
			prometheus.RecordQBRetry("server_error")
			if serr := c.sleep(ctx, c.backoff(attempt)); serr != nil {
				return serr
			}
			continue

		default:
			// 400, 403 and anything else unexpected: fatal for this record.
			return parseFault(resp.StatusCode, data)
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, bearer Bearer) (*http.Request, error) {
	u := c.baseURL + "/v3/company/" + url.PathEscape(bearer.RealmID) + path

	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	if c.minorVersion != "" {
		q.Set("minorversion", c.minorVersion)
	}
	u += "?" + q.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// backoff returns the exponential delay for the given attempt (1-based):
// base, base*2, base*4, ...
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// retryAfter parses the Retry-After response header (seconds form).
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseFault maps a QuickBooks fault body to an APIError.
func parseFault(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	var fault faultEnvelope
	if err := json.Unmarshal(body, &fault); err == nil && len(fault.Fault.Error) > 0 {
		apiErr.Code = fault.Fault.Error[0].Code
		apiErr.Message = fault.Fault.Error[0].Message
		apiErr.Detail = fault.Fault.Error[0].Detail
	}
	return apiErr
}

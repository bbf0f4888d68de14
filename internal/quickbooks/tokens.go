package quickbooks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/covxx/Paleta-sub000/internal/model"
	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/covxx/Paleta-sub000/prometheus"
	"go.uber.org/zap"
)

// refreshMargin is how long before expiry a token is already treated as
// stale. Intuit access tokens live one hour; refreshing five minutes early
// keeps in-flight sync runs from racing the expiry.
const refreshMargin = 5 * time.Minute

// CredentialStore persists the single QuickBooks credential row.
type CredentialStore interface {
	Load(ctx context.Context) (*model.QuickBooksCredential, error)
	Save(ctx context.Context, cred *model.QuickBooksCredential) error
}

// Bearer is a usable access token plus the company (realm) it belongs to.
type Bearer struct {
	AccessToken string
	RealmID     string
}

// TokenManager owns the OAuth token lifecycle: silent refresh ahead of
// expiry, forced refresh after a 401, disconnect, and the authorization-code
// exchange on the connect callback. All refreshes are serialized through one
// mutex: Intuit rotates the refresh token on every exchange, so two
// concurrent refreshes would invalidate each other.
type TokenManager struct {
	store CredentialStore
	cfg   config.QuickBooksConfig
	http  *http.Client
	log   *zap.Logger

	// now is injected in tests.
	now func() time.Time

	mu          sync.Mutex
	invalidated bool
}

// NewTokenManager creates a token manager over the given credential store.
func NewTokenManager(store CredentialStore, cfg config.QuickBooksConfig, log *zap.Logger) *TokenManager {
	return &TokenManager{
		store: store,
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log,
		now:   time.Now,
	}
}

// GetValidToken returns an access token that is good for at least the
// refresh margin, refreshing it first if needed. A refresh rejection
// (invalid_grant) clears the credential and returns ErrReauthRequired;
// after that every call returns ErrReauthRequired without touching the
// network until the company is reconnected.
func (m *TokenManager) GetValidToken(ctx context.Context) (Bearer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Load(ctx)
	if err != nil {
		return Bearer{}, err
	}
	if cred == nil || !cred.Connected {
		return Bearer{}, ErrReauthRequired
	}

	// Double-check under the lock: a caller that queued behind a refresh
	// sees the new expiry and returns without a second exchange.
	if !m.invalidated && !cred.ExpiresWithin(m.now(), refreshMargin) {
		return Bearer{AccessToken: cred.AccessToken, RealmID: cred.RealmID}, nil
	}

	if cred.RefreshToken == "" {
		return Bearer{}, m.disconnectLocked(ctx, cred, "missing refresh token")
	}

	tok, err := m.exchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
	})
	if err != nil {
		if errors.Is(err, ErrReauthRequired) {
			prometheus.RecordTokenRefresh("rejected")
			return Bearer{}, m.disconnectLocked(ctx, cred, "refresh token rejected")
		}
		prometheus.RecordTokenRefresh("error")
		return Bearer{}, fmt.Errorf("token refresh: %w", err)
	}

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.TokenExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := m.store.Save(ctx, cred); err != nil {
		return Bearer{}, fmt.Errorf("persist refreshed credential: %w", err)
	}

	m.invalidated = false
	prometheus.RecordTokenRefresh("success")
	m.log.Info("Refreshed QuickBooks access token",
		zap.String("realm_id", cred.RealmID),
		zap.Time("expires_at", cred.TokenExpiresAt))

	return Bearer{AccessToken: cred.AccessToken, RealmID: cred.RealmID}, nil
}

// Invalidate forces a refresh on the next GetValidToken call. The API client
// calls this after a 401 on a token that still looked valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.invalidated = true
	m.mu.Unlock()
}

// Connected reports whether a company is currently connected.
func (m *TokenManager) Connected(ctx context.Context) bool {
	cred, err := m.store.Load(ctx)
	return err == nil && cred != nil && cred.Connected
}

// AuthorizationURL builds the Intuit consent URL for the connect flow.
func (m *TokenManager) AuthorizationURL(state string) string {
	q := url.Values{
		"client_id":     {m.cfg.ClientID},
		"response_type": {"code"},
		"scope":         {"com.intuit.quickbooks.accounting"},
		"redirect_uri":  {m.cfg.RedirectURI},
		"state":         {state},
	}
	return m.cfg.AuthBaseURL + "?" + q.Encode()
}

// Exchange redeems an authorization code from the OAuth callback and stores
// the resulting credential as the connected company.
func (m *TokenManager) Exchange(ctx context.Context, code, realmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.exchange(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.cfg.RedirectURI},
	})
	if err != nil {
		return fmt.Errorf("authorization code exchange: %w", err)
	}

	cred, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		cred = &model.QuickBooksCredential{}
	}
	cred.RealmID = realmID
	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.TokenExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	cred.Connected = true

	if err := m.store.Save(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	m.invalidated = false
	prometheus.SetConnected(true)
	m.log.Info("QuickBooks company connected", zap.String("realm_id", realmID))
	return nil
}

// Disconnect clears the stored credential.
func (m *TokenManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}
	return m.disconnectAndSave(ctx, cred)
}

// disconnectLocked clears the credential and returns ErrReauthRequired.
// Caller must hold m.mu.
func (m *TokenManager) disconnectLocked(ctx context.Context, cred *model.QuickBooksCredential, reason string) error {
	m.log.Warn("QuickBooks credential invalidated, operator reconnect required",
		zap.String("realm_id", cred.RealmID),
		zap.String("reason", reason))
	if err := m.disconnectAndSave(ctx, cred); err != nil {
		m.log.Error("Failed to persist disconnected credential", zap.Error(err))
	}
	return ErrReauthRequired
}

func (m *TokenManager) disconnectAndSave(ctx context.Context, cred *model.QuickBooksCredential) error {
	cred.AccessToken = ""
	cred.RefreshToken = ""
	cred.TokenExpiresAt = time.Time{}
	cred.Connected = false
	prometheus.SetConnected(false)
	return m.store.Save(ctx, cred)
}

// exchange posts to the bearer token endpoint with HTTP Basic client
// authentication. invalid_grant maps to ErrReauthRequired.
func (m *TokenManager) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+m.basicAuth())

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr tokenError
		if jsonErr := json.Unmarshal(body, &oauthErr); jsonErr == nil {
			if oauthErr.Error == "invalid_grant" {
				return nil, ErrReauthRequired
			}
			if oauthErr.Error != "" {
				return nil, fmt.Errorf("token endpoint: %s - %s", oauthErr.Error, oauthErr.ErrorDescription)
			}
		}
		if resp.StatusCode >= 500 {
			return nil, &TransientError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("token endpoint returned %d", resp.StatusCode)}
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access token")
	}
	return &tok, nil
}

func (m *TokenManager) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(m.cfg.ClientID + ":" + m.cfg.ClientSecret))
}

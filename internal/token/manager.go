// Package token owns the host's catalog credential and refreshes the access
// token transparently before it expires.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/alexlhtam/vibeq/internal/core"
)

const (
	// refreshMargin refreshes the token this long before actual expiry so a
	// token handed to a caller does not expire mid-request.
	refreshMargin = 60 * time.Second

	defaultExpiresIn = 3600

	requestTimeout = 10 * time.Second
)

// CredentialStore is the slice of the persistence layer the manager needs.
type CredentialStore interface {
	Credential(ctx context.Context) (*core.Credential, error)
	SaveCredential(ctx context.Context, cred *core.Credential) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt int64) error
}

// Manager implements the token refresh protocol: load, check the expiry
// margin, exchange the refresh token when needed, persist atomically.
// Concurrent refreshes collapse into a single outbound call.
type Manager struct {
	config *core.CatalogConfig
	store  CredentialStore
	logger *zap.Logger
	client *http.Client
	group  singleflight.Group

	// onRefresh, when set, observes the outcome of every refresh attempt.
	onRefresh func(success bool)

	// now is a hook for expiry tests.
	now func() time.Time
}

func NewManager(config *core.CatalogConfig, store CredentialStore, logger *zap.Logger) *Manager {
	return &Manager{
		config: config,
		store:  store,
		logger: logger,
		client: &http.Client{Timeout: requestTimeout},
		now:    time.Now,
	}
}

// AccessToken returns a currently valid access token, refreshing it first if
// it is missing or inside the expiry margin. Reports core.ErrNoCredential
// when the host never authorized and core.ErrRefreshFailed when the exchange
// is rejected or unreachable; stored state is never mutated on failure and a
// stale token is never returned as valid.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cred, err := m.store.Credential(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.RefreshToken == "" {
		return "", core.ErrNoCredential
	}

	if m.fresh(cred) {
		return cred.AccessToken, nil
	}

	// Collapse concurrent refreshes of the single credential: the loser of
	// the race would otherwise spend a refresh token the provider may have
	// already invalidated.
	result, err, _ := m.group.Do("credential", func() (any, error) {
		// Re-read inside the flight: a racing caller may have refreshed
		// while we waited for the lock.
		cred, err := m.store.Credential(ctx)
		if err != nil {
			return "", err
		}
		if cred == nil || cred.RefreshToken == "" {
			return "", core.ErrNoCredential
		}
		if m.fresh(cred) {
			return cred.AccessToken, nil
		}
		return m.refresh(ctx, cred)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) fresh(cred *core.Credential) bool {
	return cred.AccessToken != "" && m.now().Unix() <= cred.ExpiresAt-int64(refreshMargin/time.Second)
}

// refresh exchanges the refresh token for a new access token and persists
// the result in one store transaction.
func (m *Manager) refresh(ctx context.Context, cred *core.Credential) (string, error) {
	m.logger.Info("Access token expired or missing, refreshing")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	resp, err := m.exchange(ctx, form)
	if err != nil {
		m.logger.Warn("Token refresh failed", zap.Error(err))
		m.observeRefresh(false)
		return "", fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}

	expiresAt := m.now().Unix() + resp.ExpiresIn
	if err := m.store.UpdateTokens(ctx, resp.AccessToken, resp.RefreshToken, expiresAt); err != nil {
		m.observeRefresh(false)
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}
	m.observeRefresh(true)

	m.logger.Info("Access token refreshed",
		zap.Int64("expiresAt", expiresAt),
		zap.Bool("refreshTokenRotated", resp.RefreshToken != ""))
	return resp.AccessToken, nil
}

// OnRefresh registers an observer for refresh outcomes, used for metrics.
func (m *Manager) OnRefresh(fn func(success bool)) {
	m.onRefresh = fn
}

func (m *Manager) observeRefresh(success bool) {
	if m.onRefresh != nil {
		m.onRefresh(success)
	}
}

// Authorize completes the authorization-code flow, creating (or overwriting)
// the single stored credential.
func (m *Manager) Authorize(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.config.RedirectURL)

	resp, err := m.exchange(ctx, form)
	if err != nil {
		return fmt.Errorf("authorization code exchange: %w", err)
	}

	cred := &core.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Unix() + resp.ExpiresIn,
	}
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	m.logger.Info("Host authorized", zap.Int64("expiresAt", cred.ExpiresAt))
	return nil
}

// AuthURL builds the provider authorization URL for the host connect flow.
func (m *Manager) AuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.config.ClientID)
	q.Set("redirect_uri", m.config.RedirectURL)
	q.Set("state", state)
	return m.config.AuthURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// exchange posts the form to the token endpoint with Basic client
// authentication. At most one outbound call per invocation.
func (m *Manager) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString(
		[]byte(m.config.ClientID + ":" + m.config.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("token endpoint error: %s (%s)", parsed.Error, parsed.ErrorDesc)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	if parsed.ExpiresIn == 0 {
		parsed.ExpiresIn = defaultExpiresIn
	}
	return &parsed, nil
}

// TokenSource adapts the manager to oauth2.TokenSource for the catalog
// client.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m}
}

type managerTokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *managerTokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.manager.AccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: access}, nil
}

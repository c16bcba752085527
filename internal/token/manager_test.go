package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/alexlhtam/vibeq/internal/core"
	"github.com/alexlhtam/vibeq/internal/store"
)

func newTestManager(t *testing.T, tokenURL string) (*Manager, *store.Store) {
	t.Helper()

	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := &core.CatalogConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/callback",
		TokenURL:     tokenURL,
		AuthURL:      "http://localhost/authorize",
	}
	return NewManager(cfg, s, zap.NewNop()), s
}

func tokenServer(t *testing.T, calls *atomic.Int64, response map[string]any, status int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("Missing or wrong Basic auth: %q/%q", user, pass)
		}
		w.WriteHeader(status)
		if response != nil {
			if err := json.NewEncoder(w).Encode(response); err != nil {
				t.Errorf("encode response: %v", err)
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAccessToken_NoCredential(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, nil, http.StatusOK)
	m, _ := newTestManager(t, server.URL)

	_, err := m.AccessToken(context.Background())
	if !errors.Is(err, core.ErrNoCredential) {
		t.Errorf("Expected ErrNoCredential, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("No network call expected without a credential, got %d", calls.Load())
	}
}

func TestAccessToken_FreshTokenNoNetworkCall(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, nil, http.StatusOK)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, &core.Credential{
		AccessToken:  "fresh-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Unix() + 3600,
	}); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	got, err := m.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if got != "fresh-token" {
		t.Errorf("AccessToken = %q, expected stored token", got)
	}
	if calls.Load() != 0 {
		t.Errorf("Fresh token must not trigger a refresh, got %d calls", calls.Load())
	}
}

func TestAccessToken_ExpiredTriggersOneRefresh(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, map[string]any{
		"access_token": "new-token",
		"expires_in":   3600,
	}, http.StatusOK)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, &core.Credential{
		AccessToken:  "old-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Unix() - 1,
	}); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	got, err := m.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if got != "new-token" {
		t.Errorf("AccessToken = %q, expected refreshed token", got)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one refresh call, got %d", calls.Load())
	}

	cred, err := s.Credential(ctx)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if cred.AccessToken != "new-token" {
		t.Errorf("Stored access token = %q, expected new-token", cred.AccessToken)
	}
	if cred.RefreshToken != "refresh-1" {
		t.Errorf("Refresh token should be kept when provider omits rotation, got %q", cred.RefreshToken)
	}
	if cred.ExpiresAt <= time.Now().Unix() {
		t.Errorf("Stored expiry %d should be in the future", cred.ExpiresAt)
	}
}

func TestAccessToken_WithinMarginRefreshes(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, map[string]any{
		"access_token": "new-token",
		"expires_in":   3600,
	}, http.StatusOK)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	// Expires in 30s: inside the 60s safety margin.
	if err := s.SaveCredential(ctx, &core.Credential{
		AccessToken:  "old-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Unix() + 30,
	}); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	got, err := m.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if got != "new-token" {
		t.Errorf("Token inside margin should be refreshed, got %q", got)
	}
}

func TestAccessToken_RefreshTokenRotation(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, map[string]any{
		"access_token":  "new-token",
		"refresh_token": "refresh-2",
		"expires_in":    3600,
	}, http.StatusOK)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, &core.Credential{
		RefreshToken: "refresh-1",
		ExpiresAt:    0,
	}); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	if _, err := m.AccessToken(ctx); err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}

	cred, err := s.Credential(ctx)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if cred.RefreshToken != "refresh-2" {
		t.Errorf("Refresh token should rotate when provider returns one, got %q", cred.RefreshToken)
	}
}

func TestAccessToken_RefreshFailureLeavesStateUntouched(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, map[string]any{"error": "invalid_grant"}, http.StatusBadRequest)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	original := &core.Credential{
		AccessToken:  "old-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Unix() - 1,
	}
	if err := s.SaveCredential(ctx, original); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	_, err := m.AccessToken(ctx)
	if !errors.Is(err, core.ErrRefreshFailed) {
		t.Fatalf("Expected ErrRefreshFailed, got %v", err)
	}

	cred, err := s.Credential(ctx)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if cred.AccessToken != original.AccessToken ||
		cred.RefreshToken != original.RefreshToken ||
		cred.ExpiresAt != original.ExpiresAt {
		t.Errorf("Failed refresh must not mutate stored state: %+v", cred)
	}
}

func TestAccessToken_ConcurrentRefreshSingleFlight(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		if err := json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-token",
			"expires_in":   3600,
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, &core.Credential{
		RefreshToken: "refresh-1",
		ExpiresAt:    0,
	}); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.AccessToken(ctx)
			if err != nil {
				t.Errorf("AccessToken failed: %v", err)
				return
			}
			if got != "new-token" {
				t.Errorf("AccessToken = %q, expected shared refreshed token", got)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Concurrent refreshes should collapse into one call, got %d", calls.Load())
	}
}

func TestAuthorize_CreatesCredential(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls, map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
	}, http.StatusOK)
	m, s := newTestManager(t, server.URL)
	ctx := context.Background()

	if err := m.Authorize(ctx, "auth-code"); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	cred, err := s.Credential(ctx)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if cred == nil {
		t.Fatal("Expected credential after Authorize")
	}
	if cred.AccessToken != "access-1" || cred.RefreshToken != "refresh-1" {
		t.Errorf("Unexpected credential: %+v", cred)
	}
}

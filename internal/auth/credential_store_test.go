package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialStoreGetCredentialMissing(t *testing.T) {
	s := NewCredentialStore(t.TempDir())
	cred, err := s.GetCredential("anthropic")
	if err != nil {
		t.Fatalf("GetCredential() error: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected nil credential, got %+v", cred)
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	s := NewCredentialStore(filepath.Join(t.TempDir(), "credentials"))
	want := &AuthCredential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Provider:     "anthropic",
		AuthMethod:   "oauth",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		AccountID:    "acc-1",
	}

	if err := s.SetCredential(want); err != nil {
		t.Fatalf("SetCredential() error: %v", err)
	}

	got, err := s.GetCredential("anthropic")
	if err != nil {
		t.Fatalf("GetCredential() error: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || got.AccountID != want.AccountID {
		t.Fatalf("GetCredential() = %+v, want %+v", got, want)
	}
}

func TestCredentialStoreTokenSourceRefreshesExpiredCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("grant_type") != "refresh_token" {
			http.Error(w, "invalid grant_type", http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{
			"access_token":  "refreshed-access",
			"refresh_token": "refreshed-refresh",
			"expires_in":    3600,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := OAuthProviderConfig{
		Issuer:   server.URL,
		ClientID: "test-client",
		Provider: "openai",
	}

	s := NewCredentialStore(t.TempDir())
	expired := &AuthCredential{
		AccessToken:  "stale-access",
		RefreshToken: "stale-refresh",
		Provider:     "openai",
		AuthMethod:   "oauth",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}
	if err := s.SetCredential(expired); err != nil {
		t.Fatalf("SetCredential() error: %v", err)
	}

	token, err := s.TokenSource(cfg)()
	if err != nil {
		t.Fatalf("TokenSource() error: %v", err)
	}
	if token != "refreshed-access" {
		t.Fatalf("token = %q, want %q", token, "refreshed-access")
	}

	persisted, err := s.GetCredential("openai")
	if err != nil {
		t.Fatalf("GetCredential() error: %v", err)
	}
	if persisted.AccessToken != "refreshed-access" {
		t.Fatalf("persisted AccessToken = %q, want refreshed value", persisted.AccessToken)
	}
}

func TestCredentialStoreTokenSourceNoCredential(t *testing.T) {
	s := NewCredentialStore(t.TempDir())
	cfg := OAuthProviderConfig{Provider: "anthropic"}

	if _, err := s.TokenSource(cfg)(); err == nil {
		t.Fatal("expected error when no credential is stored")
	}
}

package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore persists one AuthCredential per provider as a JSON file
// under dir/<provider>.json, closing the gap the teacher's own pkg/auth
// left open (it shipped only the OAuth exchange logic, never a
// GetCredential/SetCredential analog).
type CredentialStore struct {
	dir string
}

func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

func (s *CredentialStore) path(provider string) string {
	return filepath.Join(s.dir, provider+".json")
}

// GetCredential returns nil, nil if no credential has been stored yet.
func (s *CredentialStore) GetCredential(provider string) (*AuthCredential, error) {
	data, err := os.ReadFile(s.path(provider))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stored credential: %w", err)
	}
	var cred AuthCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode stored credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStore) SetCredential(cred *AuthCredential) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return os.WriteFile(s.path(cred.Provider), data, 0o600)
}

// TokenSource returns the closure claude_provider.go's oauthBearerMiddleware
// calls on every request: it loads the stored credential, transparently
// refreshes it via RefreshAccessToken once AuthCredential.NeedsRefresh
// reports true, and persists the refreshed credential back to disk before
// handing back the access token.
func (s *CredentialStore) TokenSource(cfg OAuthProviderConfig) func() (string, error) {
	return func() (string, error) {
		cred, err := s.GetCredential(cfg.Provider)
		if err != nil {
			return "", err
		}
		if cred == nil {
			return "", fmt.Errorf("no stored oauth credential for %s; run `janus setup --oauth` first", cfg.Provider)
		}

		if cred.NeedsRefresh() {
			refreshed, err := RefreshAccessToken(cred, cfg)
			if err != nil {
				return "", fmt.Errorf("refresh oauth token: %w", err)
			}
			if err := s.SetCredential(refreshed); err != nil {
				return "", err
			}
			cred = refreshed
		}

		return cred.AccessToken, nil
	}
}

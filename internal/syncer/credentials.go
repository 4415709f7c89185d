package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

// CredentialManager persists one oauth2 token per provider and refreshes
// expired tokens when the provider has an oauth2.Config registered.
type CredentialManager struct {
	mu      sync.Mutex
	store   storage.CredentialStore
	configs map[string]*oauth2.Config
	cache   map[string]*oauth2.Token
}

// NewCredentialManager returns a manager backed by store.
func NewCredentialManager(store storage.CredentialStore) *CredentialManager {
	return &CredentialManager{
		store:   store,
		configs: make(map[string]*oauth2.Config),
		cache:   make(map[string]*oauth2.Token),
	}
}

// SetOAuthConfig registers the oauth2 endpoint configuration used to
// refresh provider's tokens.
func (m *CredentialManager) SetOAuthConfig(provider string, cfg *oauth2.Config) {
	m.mu.Lock()
	m.configs[provider] = cfg
	m.mu.Unlock()
}

// Save stores the token for provider, replacing any previous one.
func (m *CredentialManager) Save(ctx context.Context, provider string, tok *oauth2.Token) error {
	blob, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token for %s: %w", provider, err)
	}
	if err := m.store.SaveCredential(ctx, provider, blob); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[provider] = tok
	m.mu.Unlock()
	return nil
}

// Token returns a valid token for provider, refreshing a stale one when a
// refresh config is registered. Missing credentials map to ErrNotFound.
func (m *CredentialManager) Token(ctx context.Context, provider string) (*oauth2.Token, error) {
	m.mu.Lock()
	tok := m.cache[provider]
	cfg := m.configs[provider]
	m.mu.Unlock()

	if tok == nil {
		blob, err := m.store.GetCredential(ctx, provider)
		if err != nil {
			return nil, err
		}
		tok = new(oauth2.Token)
		if err := json.Unmarshal(blob, tok); err != nil {
			return nil, fmt.Errorf("decode token for %s: %w", provider, err)
		}
		m.mu.Lock()
		m.cache[provider] = tok
		m.mu.Unlock()
	}

	if tok.Valid() || cfg == nil {
		return tok, nil
	}

	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, wizard.NewError(wizard.CodeAuthRequired, provider,
			fmt.Sprintf("token refresh failed: %v", err))
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := m.Save(ctx, provider, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// Delete removes provider's stored credentials.
func (m *CredentialManager) Delete(ctx context.Context, provider string) error {
	if err := m.store.DeleteCredential(ctx, provider); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, provider)
	m.mu.Unlock()
	return nil
}

package core

import (
	"context"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// MemoryCredentialManager keeps identity providers in process memory.
type MemoryCredentialManager struct {
	mu        sync.RWMutex
	providers map[string]IdentityProvider
}

func NewMemoryCredentialManager() *MemoryCredentialManager {
	return &MemoryCredentialManager{providers: map[string]IdentityProvider{}}
}

func (m *MemoryCredentialManager) RegisterIdentityProvider(_ context.Context, provider IdentityProvider) error {
	if m == nil {
		return NewError("core: credential manager is nil", goerrors.CategoryInternal, ErrorInternal, nil)
	}
	name := strings.TrimSpace(provider.Name)
	if name == "" {
		return NewError("core: identity provider name is required", goerrors.CategoryBadInput, ErrorBadInput, nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.providers == nil {
		m.providers = map[string]IdentityProvider{}
	}
	provider.Name = name
	m.providers[name] = provider
	return nil
}

func (m *MemoryCredentialManager) IdentityProvider(name string) (IdentityProvider, bool) {
	if m == nil {
		return IdentityProvider{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	provider, ok := m.providers[strings.TrimSpace(name)]
	return provider, ok
}

// IdentityProviderFromConfig derives the provider registered at build time.
func IdentityProviderFromConfig(cfg Config) IdentityProvider {
	return IdentityProvider{
		Name:         strings.TrimSpace(cfg.ClientName),
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
		RedirectURL:  cfg.Credentials.RedirectURL,
	}
}

package provider

import (
	"context"
	"sync"
)

// Default search tuning shared by the adapters.
const (
	DefaultThreshold = 10
	DefaultPageSize  = 25
	DefaultMaxPages  = 4
)

// SourceSettings is the configuration one adapter reads.
type SourceSettings struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	BaseURL      string
	// Threshold is the edit distance bound used when an adapter picks an
	// artist name out of a search response.
	Threshold int
	PageSize  int
	MaxPages  int
}

// withDefaults fills zero values.
func (s SourceSettings) withDefaults(name ProviderName) SourceSettings {
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
		if name == NameLastFM {
			s.Threshold = 8
		}
	}
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.MaxPages <= 0 {
		s.MaxPages = DefaultMaxPages
	}
	return s
}

// SettingsService hands adapters their settings and credentials.
type SettingsService struct {
	mu      sync.RWMutex
	sources map[ProviderName]SourceSettings
}

// NewSettingsService creates a SettingsService from per-provider settings,
// which may be nil.
func NewSettingsService(sources map[ProviderName]SourceSettings) *SettingsService {
	s := &SettingsService{sources: make(map[ProviderName]SourceSettings, len(sources))}
	for name, cfg := range sources {
		s.sources[name] = cfg
	}
	return s
}

// Set replaces the settings of one provider.
func (s *SettingsService) Set(name ProviderName, cfg SourceSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = cfg
}

// Get returns the settings of a provider with defaults applied.
func (s *SettingsService) Get(name ProviderName) SourceSettings {
	s.mu.RLock()
	cfg := s.sources[name]
	s.mu.RUnlock()
	return cfg.withDefaults(name)
}

// ctxKeyOverride is the context key for per-request API key overrides.
type ctxKeyOverride struct{}

// WithAPIKeyOverride returns a child context that overrides the configured
// API key for the named provider.
func WithAPIKeyOverride(ctx context.Context, name ProviderName, key string) context.Context {
	parentOverrides, _ := ctx.Value(ctxKeyOverride{}).(map[ProviderName]string)

	// Always create a fresh map to avoid mutating any map stored in a parent context.
	overrides := make(map[ProviderName]string, len(parentOverrides)+1)
	for k, v := range parentOverrides {
		overrides[k] = v
	}
	overrides[name] = key
	return context.WithValue(ctx, ctxKeyOverride{}, overrides)
}

// GetAPIKey returns the API key for a provider, preferring an override
// injected with WithAPIKeyOverride. A missing key is reported as
// ErrAuthRequired.
func (s *SettingsService) GetAPIKey(ctx context.Context, name ProviderName) (string, error) {
	if overrides, ok := ctx.Value(ctxKeyOverride{}).(map[ProviderName]string); ok {
		if v, found := overrides[name]; found && v != "" {
			return v, nil
		}
	}
	key := s.Get(name).APIKey
	if key == "" {
		return "", &ErrAuthRequired{Provider: name}
	}
	return key, nil
}

// HasCredentials reports whether the provider's credentials are configured.
func (s *SettingsService) HasCredentials(name ProviderName) bool {
	cfg := s.Get(name)
	switch name {
	case NameSpotify:
		return cfg.ClientID != "" && cfg.ClientSecret != ""
	default:
		return cfg.APIKey != ""
	}
}

// ProviderKeyStatus describes the credential state of a provider.
type ProviderKeyStatus struct {
	Name              ProviderName `json:"name"`
	DisplayName       string       `json:"display_name"`
	RequiresKey       bool         `json:"requires_key"`
	HasKey            bool         `json:"has_key"`
	Status            string       `json:"status"` // "configured", "not_required", "unconfigured"
	AccessTier        AccessTier   `json:"access_tier"`
	HelpURL           string       `json:"help_url,omitempty"`
	RequestsPerSecond float64      `json:"requests_per_second"`
}

// ListProviderKeyStatuses returns the credential status of all known providers.
func (s *SettingsService) ListProviderKeyStatuses() []ProviderKeyStatus {
	caps := ProviderCapabilities()
	statuses := make([]ProviderKeyStatus, 0, len(caps))
	for _, name := range AllProviderNames() {
		requiresKey := ProviderRequiresKey(name)
		hasKey := s.HasCredentials(name)
		status := "unconfigured"
		switch {
		case !requiresKey:
			status = "not_required"
		case hasKey:
			status = "configured"
		}
		c := caps[name]
		statuses = append(statuses, ProviderKeyStatus{
			Name:              name,
			DisplayName:       name.DisplayName(),
			RequiresKey:       requiresKey,
			HasKey:            hasKey,
			Status:            status,
			AccessTier:        c.Tier,
			HelpURL:           c.HelpURL,
			RequestsPerSecond: c.RequestsPerSecond,
		})
	}
	return statuses
}

// ProviderRequiresKey returns whether a provider needs credentials.
func ProviderRequiresKey(name ProviderName) bool {
	switch name {
	case NameMusicBrainz, NameDeezer:
		return false
	default:
		return true
	}
}

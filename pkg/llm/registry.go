// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrFactoryNotFound indicates no factory is registered for the provider.
	ErrFactoryNotFound = errors.New("provider factory not found")

	// ErrMissingAPIKey indicates a provider was configured without credentials.
	ErrMissingAPIKey = errors.New("API key is required")
)

// ProviderConfig carries everything a factory needs to build a provider.
type ProviderConfig struct {
	// Name selects the factory (e.g., "openai").
	Name string

	APIKey string

	// BaseURL overrides the provider's default endpoint. OpenAI-compatible
	// gateways are reached this way.
	BaseURL string

	// Model is the default model for requests that do not name one.
	Model string

	// RequestTimeout bounds a single HTTP request. Zero uses the SDK default.
	RequestTimeout time.Duration

	// HTTPClient replaces the SDK's HTTP client.
	HTTPClient *http.Client
}

// Validate checks that the API key is present.
func (c ProviderConfig) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Redacted returns a safe-to-log description with the API key masked.
func (c ProviderConfig) Redacted() string {
	s := fmt.Sprintf("provider=%s model=%s api_key=%s", c.Name, c.Model, maskSecret(c.APIKey))
	if c.BaseURL != "" {
		s += " base_url=" + c.BaseURL
	}
	return s
}

// maskSecret shows the first and last four characters of a secret.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// ProviderFactory creates a Provider from configuration.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// Registry maps provider names to factories. Factories register at import
// time; providers are built on demand from configuration.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// RegisterFactory registers a factory. Registering the same name twice
// overwrites the previous factory.
func (r *Registry) RegisterFactory(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// HasFactory reports whether name has a factory.
func (r *Registry) HasFactory(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// ListFactories returns registered provider names, sorted.
func (r *Registry) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the provider named by cfg.Name.
func (r *Registry) New(cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrFactoryNotFound, cfg.Name, strings.Join(r.ListFactories(), ", "))
	}
	return factory(cfg)
}

var globalRegistry = NewRegistry()

// RegisterFactory registers a factory in the global registry.
func RegisterFactory(name string, factory ProviderFactory) {
	globalRegistry.RegisterFactory(name, factory)
}

// HasFactory reports whether the global registry has a factory for name.
func HasFactory(name string) bool {
	return globalRegistry.HasFactory(name)
}

// ListFactories lists the global registry's provider names.
func ListFactories() []string {
	return globalRegistry.ListFactories()
}

// New builds a provider from the global registry.
func New(cfg ProviderConfig) (Provider, error) {
	return globalRegistry.New(cfg)
}

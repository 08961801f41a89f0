package providers

import (
	"sync"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

// RateLimitResponseKey is the provider config key that overrides a provider's rate-limit policy.
const RateLimitResponseKey = "rateLimitResponse"

// Registry maps provider ids to strategies. Unknown ids resolve to the generic provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]protocol.Provider
	order     []string
	fallback  protocol.Provider
}

func NewRegistry(fallback protocol.Provider, providers ...protocol.Provider) *Registry {
	r := &Registry{
		providers: make(map[string]protocol.Provider),
		fallback:  fallback,
	}

	r.Register(fallback)

	for _, provider := range providers {
		r.Register(provider)
	}

	return r
}

// Default returns a registry with every built-in provider.
func Default() *Registry {
	return NewRegistry(
		NewGeneric(),
		NewSlack(),
		NewGitHub(),
		NewWhatsApp(),
		NewTelegram(),
		NewMicrosoftTeams(),
		NewAirtable(),
	)
}

// Register adds or replaces a provider. Registration order is the challenge order.
func (r *Registry) Register(provider protocol.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[provider.ID()]; !exists {
		r.order = append(r.order, provider.ID())
	}

	r.providers[provider.ID()] = provider
}

//nolint:ireturn
func (r *Registry) Get(id string) protocol.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, ok := r.providers[id]; ok {
		return provider
	}

	return r.fallback
}

// IDs returns the registered provider ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Challengers returns the providers that perform handshakes, in registration order.
func (r *Registry) Challengers() []protocol.Challenger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	challengers := make([]protocol.Challenger, 0)

	for _, id := range r.order {
		if challenger, ok := r.providers[id].(protocol.Challenger); ok {
			challengers = append(challengers, challenger)
		}
	}

	return challengers
}

// RateLimitPolicy resolves the policy for webhook, honoring a per-webhook override.
func (r *Registry) RateLimitPolicy(webhook *models.Webhook) protocol.RateLimitPolicy {
	if policy, ok := protocol.ParseRateLimitPolicy(webhook.ConfigString(RateLimitResponseKey)); ok {
		return policy
	}

	return r.Get(webhook.Provider).RateLimitPolicy()
}

// Package providers routes logical model ids to streaming provider
// adapters using the model catalog.
package providers

import (
	"log/slog"
	"sync"

	"ripple/internal/catalog"
	"ripple/internal/domain/services"
	"ripple/internal/service/providers/adapters"
)

// Router resolves a logical model id to its catalog entry and a ready
// provider adapter. Adapters are created lazily, once per provider, so a
// missing API key only surfaces when that provider's models are used.
type Router struct {
	catalog *catalog.Catalog
	factory *ProviderFactory
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]services.ModelProvider
}

// NewRouter creates a router over the catalog and provider factory.
func NewRouter(cat *catalog.Catalog, factory *ProviderFactory, logger *slog.Logger) *Router {
	return &Router{
		catalog: cat,
		factory: factory,
		logger:  logger,
		cache:   make(map[string]services.ModelProvider),
	}
}

// Resolve returns the provider adapter and catalog entry for a logical
// model id. Returns *domain.ModelNotFoundError for ids absent from the
// catalog.
func (r *Router) Resolve(model string) (services.ModelProvider, *catalog.Entry, error) {
	entry, err := r.catalog.Lookup(model)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if provider, ok := r.cache[entry.Provider]; ok {
		return provider, entry, nil
	}

	libProvider, err := r.factory.GetProvider(entry.Provider)
	if err != nil {
		return nil, nil, err
	}

	provider := adapters.NewAdapter(libProvider)
	r.cache[entry.Provider] = provider

	r.logger.Info("provider initialized", "provider", entry.Provider)

	return provider, entry, nil
}

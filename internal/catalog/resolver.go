package catalog

import (
	"context"
	"fmt"
	"strings"

	"commerce-agent/internal/models"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// MaxCards caps the number of items shown in one catalog card
const MaxCards = 6

// Resolver turns queries and ids into decorated catalog items
type Resolver struct {
	backend Backend
	images  ImagePolicy
	cache   Cache
	logger  *zap.Logger
}

// NewResolver creates a new resolver. A nil cache disables caching.
func NewResolver(backend Backend, images ImagePolicy, cache Cache) *Resolver {
	return &Resolver{
		backend: backend,
		images:  images,
		cache:   cache,
		logger:  util.GetLogger(),
	}
}

// Backend returns the underlying catalog backend
func (r *Resolver) Backend() Backend {
	return r.backend
}

func (r *Resolver) cacheKey(query string) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToLower(query), r.backend.Name(), r.images)
}

// Search returns matching items, cached by (query, backend, image policy)
func (r *Resolver) Search(ctx context.Context, query string) ([]models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.Search")
	defer span.End()

	key := r.cacheKey(query)
	if r.cache != nil {
		if items, ok := r.cache.Get(ctx, key); ok {
			util.SearchRequestsTotal.WithLabelValues(r.backend.Name(), "hit").Inc()
			return items, nil
		}
	}
	util.SearchRequestsTotal.WithLabelValues(r.backend.Name(), "miss").Inc()

	items, err := r.backend.Search(ctx, query)
	if err != nil {
		r.logger.Error("Catalog search failed",
			zap.String("query", query),
			zap.String("backend", r.backend.Name()),
			zap.Error(err))
		return nil, err
	}

	out := r.images.DecorateAll(items)
	if r.cache != nil {
		r.cache.Set(ctx, key, out)
	}
	return out, nil
}

// Candidates matches a purchase query without caching or preview
func (r *Resolver) Candidates(ctx context.Context, query string) ([]models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.Candidates")
	defer span.End()

	items, err := r.backend.Match(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.images.DecorateAll(items), nil
}

// GetByID resolves an explicit id
func (r *Resolver) GetByID(ctx context.Context, id string) (models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.GetByID")
	defer span.End()

	item, err := r.backend.GetByID(ctx, id)
	if err != nil {
		return models.CatalogItem{}, err
	}
	return r.images.Decorate(item), nil
}

// Cards returns at most MaxCards items in resolver order
func Cards(items []models.CatalogItem) []models.CatalogItem {
	if len(items) > MaxCards {
		return items[:MaxCards]
	}
	return items
}

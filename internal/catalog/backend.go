// Package catalog resolves free-text queries and explicit ids into catalog
// items over a pluggable backend.
package catalog

import (
	"context"

	"commerce-agent/internal/models"
)

// Backend is a catalog source
type Backend interface {
	// Name identifies the backend in cache keys, metrics and status
	Name() string
	// Search answers the public search contract
	Search(ctx context.Context, query string) ([]models.CatalogItem, error)
	// Match applies strict-then-fuzzy matching without any preview policy
	Match(ctx context.Context, query string) ([]models.CatalogItem, error)
	// GetByID returns errs.ErrNotFound when the id does not resolve
	GetByID(ctx context.Context, id string) (models.CatalogItem, error)
}

// Reloader is implemented by backends that can refresh from their source
type Reloader interface {
	Reload() (int, error)
}

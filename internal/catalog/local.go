package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/lexical"
	"commerce-agent/internal/models"
	"commerce-agent/internal/util"
)

// PreviewSize is the number of entries an empty local query returns
const PreviewSize = 5

// Local serves an in-memory snapshot of a JSON catalog file
type Local struct {
	path    string
	matcher *lexical.Matcher

	mu    sync.RWMutex
	items []models.CatalogItem
}

// NewLocal creates a local backend over an already loaded snapshot
func NewLocal(items []models.CatalogItem, matcher *lexical.Matcher) *Local {
	return &Local{items: items, matcher: matcher}
}

// LoadLocal reads the catalog file at path
func LoadLocal(path string, matcher *lexical.Matcher) (*Local, error) {
	items, err := readCatalog(path)
	if err != nil {
		return nil, err
	}
	l := NewLocal(items, matcher)
	l.path = path
	return l, nil
}

func readCatalog(path string) ([]models.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var items []models.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return items, nil
}

func (l *Local) Name() string {
	return "local"
}

// Path returns the catalog file, empty for in-memory snapshots
func (l *Local) Path() string {
	return l.path
}

// Items returns the current snapshot
func (l *Local) Items() []models.CatalogItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items
}

// Reload swaps in a fresh snapshot from disk. A failed read keeps the old one.
func (l *Local) Reload() (int, error) {
	if l.path == "" {
		return 0, fmt.Errorf("catalog has no backing file")
	}
	items, err := readCatalog(l.path)
	if err != nil {
		util.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()

	util.CatalogReloadsTotal.WithLabelValues("ok").Inc()
	return len(items), nil
}

func (l *Local) Search(ctx context.Context, query string) ([]models.CatalogItem, error) {
	if query == "" {
		items := l.Items()
		n := min(PreviewSize, len(items))
		out := make([]models.CatalogItem, n)
		copy(out, items[:n])
		return out, nil
	}
	return l.Match(ctx, query)
}

func (l *Local) Match(_ context.Context, query string) ([]models.CatalogItem, error) {
	out, fuzzy := l.matcher.Filter(l.Items(), query, lexical.FullHaystack)
	if fuzzy {
		util.SearchFuzzyFallbackTotal.Inc()
	}
	return out, nil
}

func (l *Local) GetByID(_ context.Context, id string) (models.CatalogItem, error) {
	for _, it := range l.Items() {
		if strings.EqualFold(it.ID, id) {
			return it, nil
		}
	}
	return models.CatalogItem{}, fmt.Errorf("item %s: %w", id, errs.ErrNotFound)
}

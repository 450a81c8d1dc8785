package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/lexical"
	"commerce-agent/internal/models"
	"commerce-agent/internal/util"
)

// Remote queries a DummyJSON-compatible public product API.
// Remote records carry no keywords, so matching uses title and id only.
type Remote struct {
	baseURL string
	client  *http.Client
	matcher *lexical.Matcher
}

// NewRemote creates a remote backend
func NewRemote(baseURL string, matcher *lexical.Matcher) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		matcher: matcher,
	}
}

type dummyProduct struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Price     float64  `json:"price"`
	Thumbnail string   `json:"thumbnail"`
	Images    []string `json:"images"`
}

type dummySearchResponse struct {
	Products []dummyProduct `json:"products"`
}

func (p dummyProduct) toItem() models.CatalogItem {
	image := p.Thumbnail
	if image == "" && len(p.Images) > 0 {
		image = p.Images[0]
	}
	return models.CatalogItem{
		ID:    fmt.Sprintf("D%d", p.ID),
		Title: p.Title,
		Price: p.Price,
		Image: image,
	}
}

func (r *Remote) Name() string {
	return "dummyjson"
}

func (r *Remote) Search(ctx context.Context, query string) ([]models.CatalogItem, error) {
	return r.Match(ctx, query)
}

func (r *Remote) Match(ctx context.Context, query string) ([]models.CatalogItem, error) {
	items, err := r.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	out, fuzzy := r.matcher.Filter(items, query, lexical.TitleHaystack)
	if fuzzy {
		util.SearchFuzzyFallbackTotal.Inc()
	}
	return out, nil
}

func (r *Remote) fetch(ctx context.Context, query string) ([]models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "Remote.Search")
	defer span.End()

	start := time.Now()
	defer func() {
		util.UpstreamLatency.WithLabelValues("catalog").Observe(time.Since(start).Seconds())
	}()

	endpoint := fmt.Sprintf("%s/products/search?q=%s", r.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: remote search: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: remote search status %d", errs.ErrUpstream, resp.StatusCode)
	}

	var body dummySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode remote search: %v", errs.ErrUpstream, err)
	}

	items := make([]models.CatalogItem, 0, len(body.Products))
	for _, p := range body.Products {
		items = append(items, p.toItem())
	}
	return items, nil
}

// GetByID accepts both "D12" and "12"
func (r *Remote) GetByID(ctx context.Context, id string) (models.CatalogItem, error) {
	ctx, span := util.StartSpan(ctx, "Remote.GetByID")
	defer span.End()

	n := id
	if strings.HasPrefix(strings.ToUpper(n), "D") {
		n = n[1:]
	}

	endpoint := fmt.Sprintf("%s/products/%s", r.baseURL, url.PathEscape(n))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("%w: remote get: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.CatalogItem{}, fmt.Errorf("item %s: %w", id, errs.ErrNotFound)
	}

	var p dummyProduct
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil || p.ID == 0 {
		return models.CatalogItem{}, fmt.Errorf("item %s: %w", id, errs.ErrNotFound)
	}
	return p.toItem(), nil
}

package catalog

import (
	"net/url"
	"regexp"
	"strings"

	"commerce-agent/internal/models"
)

// Image decoration policies
const (
	ImageCatalog  = "catalog"
	ImagePicsum   = "picsum"
	ImageUnsplash = "unsplash"
)

var (
	parensRe = regexp.MustCompile(`[()]`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// ImagePolicy fills in item image URLs
type ImagePolicy string

// Decorate returns a copy of item with its image set according to the policy.
// The catalog policy keeps the record's own image and falls back to a seeded placeholder.
func (p ImagePolicy) Decorate(item models.CatalogItem) models.CatalogItem {
	switch p {
	case ImagePicsum:
		item.Image = picsumURL(item.ID)
	case ImageUnsplash:
		item.Image = unsplashURL(item.Title)
	default:
		if item.Image == "" {
			item.Image = picsumURL(item.ID)
		}
	}
	return item
}

// DecorateAll decorates every item
func (p ImagePolicy) DecorateAll(items []models.CatalogItem) []models.CatalogItem {
	out := make([]models.CatalogItem, len(items))
	for i, it := range items {
		out[i] = p.Decorate(it)
	}
	return out
}

func sanitizeTitle(t string) string {
	t = parensRe.ReplaceAllString(t, " ")
	t = spacesRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func unsplashURL(title string) string {
	return "https://source.unsplash.com/featured/240x180?" + url.QueryEscape(sanitizeTitle(title))
}

func picsumURL(id string) string {
	if id == "" {
		id = "placeholder"
	}
	return "https://picsum.photos/seed/" + url.PathEscape(id) + "/240/180"
}

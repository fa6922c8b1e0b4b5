package app

import (
	"context"
	"strings"
	"time"

	"classifieds/internal/util"
	"classifieds/pkg/domain"
	"classifieds/pkg/storage"
	"classifieds/pkg/store"
)

const (
	searchLimit         = 10
	recommendationLimit = 5
	wideningStep        = 3
	wideningFloor       = 3
)

// MatchingEngine implements the product-matching heuristics over the catalog.
type MatchingEngine struct {
	catalog     store.Catalog
	images      storage.ObjectStore
	imageExpiry time.Duration
}

// NewMatchingEngine wires the engine to a catalog. The object store is
// optional; when nil, results carry no image URL.
func NewMatchingEngine(catalog store.Catalog, images storage.ObjectStore, imageExpiry time.Duration) *MatchingEngine {
	if imageExpiry <= 0 {
		imageExpiry = 15 * time.Minute
	}
	return &MatchingEngine{catalog: catalog, images: images, imageExpiry: imageExpiry}
}

// SearchProducts returns up to 10 active products matching the query. The
// tiers are exclusive fallbacks: title first, then description, then category
// name. Results from different tiers are never merged.
func (e *MatchingEngine) SearchProducts(ctx context.Context, query string) ([]domain.SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	products, err := e.catalog.SearchActiveByTitle(query, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		products, err = e.catalog.SearchActiveByDescription(query, searchLimit)
		if err != nil {
			return nil, err
		}
	}
	if len(products) == 0 {
		products, err = e.catalog.SearchActiveByCategory(query, searchLimit)
		if err != nil {
			return nil, err
		}
	}
	return e.project(ctx, products), nil
}

// Recommendations returns up to 5 active products from sellers matching the
// user's profile. Matching widens in three passes (location+university+faculty,
// then university+faculty, then university only) and never falls back to
// unrelated products.
func (e *MatchingEngine) Recommendations(ctx context.Context, user domain.User) ([]domain.SearchResult, error) {
	if user.Location == "" && user.University == "" && user.Faculty == "" {
		return []domain.SearchResult{}, nil
	}

	products, err := e.catalog.ActiveBySellerProfile(store.SellerMatch{
		Location:   user.Location,
		University: user.University,
		Faculty:    user.Faculty,
	}, nil, recommendationLimit)
	if err != nil {
		return nil, err
	}

	if len(products) < wideningFloor {
		products, err = e.widen(products, store.SellerMatch{
			University: user.University,
			Faculty:    user.Faculty,
		})
		if err != nil {
			return nil, err
		}
	}
	if len(products) < wideningFloor {
		products, err = e.widen(products, store.SellerMatch{University: user.University})
		if err != nil {
			return nil, err
		}
	}
	return e.project(ctx, products), nil
}

// widen extends (never replaces) the selection with up to wideningStep more
// products matching m, skipping already-selected ids, capped at the overall
// recommendation limit.
func (e *MatchingEngine) widen(selected []domain.Product, m store.SellerMatch) ([]domain.Product, error) {
	exclude := make([]string, 0, len(selected))
	for _, p := range selected {
		exclude = append(exclude, p.ID)
	}
	more, err := e.catalog.ActiveBySellerProfile(m, exclude, wideningStep)
	if err != nil {
		return nil, err
	}
	selected = append(selected, more...)
	if len(selected) > recommendationLimit {
		selected = selected[:recommendationLimit]
	}
	return selected, nil
}

// project denormalizes products into transport results, filling the
// placeholder values for absent seller, category and campus fields.
func (e *MatchingEngine) project(ctx context.Context, products []domain.Product) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, e.toResult(ctx, p))
	}
	return results
}

func (e *MatchingEngine) toResult(ctx context.Context, p domain.Product) domain.SearchResult {
	result := domain.SearchResult{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Condition:   p.Condition,
		Category:    "No category",
		University:  orPlaceholder(p.University),
		Faculty:     orPlaceholder(p.Faculty),
		Seller:      domain.SellerView{Name: "Unknown Seller"},
	}
	if p.Category != nil {
		result.Category = p.Category.Name
	}
	if p.Seller != nil {
		name := p.Seller.Name
		if name == "" {
			name = p.Seller.Username
		}
		result.Seller = domain.SellerView{
			ID:       p.Seller.ID,
			Name:     name,
			Username: p.Seller.Username,
		}
	}
	if e.images != nil && p.ImageKey != "" {
		url, err := e.images.PresignGet(ctx, p.ImageKey, e.imageExpiry)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("presign product image failed", "product_id", p.ID, "error", err)
		} else {
			result.ImageURL = url
		}
	}
	return result
}

func orPlaceholder(v string) string {
	if strings.TrimSpace(v) == "" {
		return "Not specified"
	}
	return v
}

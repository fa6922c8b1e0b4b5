package store

import "classifieds/pkg/domain"

// SellerMatch holds the profile attributes a recommendation pass matches
// sellers against. Empty fields match every seller, mirroring a contains
// filter with an empty needle.
type SellerMatch struct {
	Location   string
	University string
	Faculty    string
}

// Catalog is the read-only query surface over the product store. The chat
// core never writes through it.
type Catalog interface {
	// SearchActiveByTitle returns active products whose title contains the
	// query, case-insensitive, up to limit.
	SearchActiveByTitle(query string, limit int) ([]domain.Product, error)
	// SearchActiveByDescription is the description-field counterpart.
	SearchActiveByDescription(query string, limit int) ([]domain.Product, error)
	// SearchActiveByCategory matches on the category name.
	SearchActiveByCategory(query string, limit int) ([]domain.Product, error)
	// ActiveBySellerProfile returns active products whose seller matches all
	// fields of m (substring, case-insensitive), skipping excludeIDs.
	ActiveBySellerProfile(m SellerMatch, excludeIDs []string, limit int) ([]domain.Product, error)
	// GetUserByID resolves the authenticated caller's profile.
	GetUserByID(id string) (domain.User, bool, error)
}

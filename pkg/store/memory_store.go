package store

import (
	"strings"
	"sync"

	"classifieds/pkg/domain"
)

// MemoryStore keeps the catalog in-process. It backs tests and local runs
// without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	products []domain.Product
	users    map[string]domain.User
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]domain.User)}
}

// AddProduct appends a product in insertion order.
func (m *MemoryStore) AddProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
}

// AddUser registers a user profile.
func (m *MemoryStore) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) SearchActiveByTitle(query string, limit int) ([]domain.Product, error) {
	return m.filterActive(limit, func(p domain.Product) bool {
		return containsFold(p.Title, query)
	}), nil
}

func (m *MemoryStore) SearchActiveByDescription(query string, limit int) ([]domain.Product, error) {
	return m.filterActive(limit, func(p domain.Product) bool {
		return containsFold(p.Description, query)
	}), nil
}

func (m *MemoryStore) SearchActiveByCategory(query string, limit int) ([]domain.Product, error) {
	return m.filterActive(limit, func(p domain.Product) bool {
		return p.Category != nil && containsFold(p.Category.Name, query)
	}), nil
}

func (m *MemoryStore) ActiveBySellerProfile(match SellerMatch, excludeIDs []string, limit int) ([]domain.Product, error) {
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	return m.filterActive(limit, func(p domain.Product) bool {
		if _, skip := excluded[p.ID]; skip {
			return false
		}
		if p.Seller == nil {
			return false
		}
		return containsFold(p.Seller.Location, match.Location) &&
			containsFold(p.Seller.University, match.University) &&
			containsFold(p.Seller.Faculty, match.Faculty)
	}), nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) filterActive(limit int, keep func(domain.Product) bool) []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	res := make([]domain.Product, 0, limit)
	for _, p := range m.products {
		if p.Status != domain.ProductActive {
			continue
		}
		if !keep(p) {
			continue
		}
		res = append(res, p)
		if len(res) == limit {
			break
		}
	}
	return res
}

// containsFold matches an empty needle against anything, like SQL ILIKE '%%'.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

package store

import (
	"testing"

	"classifieds/pkg/domain"
)

func seedProduct(id, title string, status domain.ProductStatus, seller *domain.Seller) domain.Product {
	return domain.Product{ID: id, Title: title, Status: status, Seller: seller}
}

func TestMemoryStoreFiltersInactive(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(seedProduct("p1", "Ruler", domain.ProductActive, nil))
	m.AddProduct(seedProduct("p2", "Ruler Deluxe", domain.ProductSold, nil))

	got, err := m.SearchActiveByTitle("ruler", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("expected only active product, got %+v", got)
	}
}

func TestMemoryStoreRespectsLimitAndOrder(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(seedProduct("p1", "Ruler A", domain.ProductActive, nil))
	m.AddProduct(seedProduct("p2", "Ruler B", domain.ProductActive, nil))
	m.AddProduct(seedProduct("p3", "Ruler C", domain.ProductActive, nil))

	got, err := m.SearchActiveByTitle("ruler", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("expected first two in insertion order, got %+v", got)
	}
}

func TestMemoryStoreTreatsWildcardCharactersLiterally(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(seedProduct("p1", "Cotton 100% notebook", domain.ProductActive, nil))
	m.AddProduct(seedProduct("p2", "Plain notebook", domain.ProductActive, nil))

	got, err := m.SearchActiveByTitle("100%", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("expected literal match only, got %+v", got)
	}
}

func TestMemoryStoreSellerProfileEmptyFieldsMatchAll(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(seedProduct("p1", "Ruler", domain.ProductActive,
		&domain.Seller{ID: "s1", Location: "Cairo", University: "Alexandria", Faculty: "Computer Science"}))
	m.AddProduct(seedProduct("p2", "Calculator", domain.ProductActive,
		&domain.Seller{ID: "s2", Location: "Giza", University: "Alexandria", Faculty: "Engineering"}))

	// University-only pass: the other fields are empty and match everything.
	got, err := m.ActiveBySellerProfile(SellerMatch{University: "alexandria"}, nil, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both sellers matched, got %+v", got)
	}
}

func TestMemoryStoreSellerProfileExcludesIDs(t *testing.T) {
	m := NewMemoryStore()
	seller := &domain.Seller{ID: "s1", University: "Alexandria"}
	m.AddProduct(seedProduct("p1", "Ruler", domain.ProductActive, seller))
	m.AddProduct(seedProduct("p2", "Calculator", domain.ProductActive, seller))

	got, err := m.ActiveBySellerProfile(SellerMatch{University: "Alexandria"}, []string{"p1"}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("expected p1 excluded, got %+v", got)
	}
}

func TestMemoryStoreSkipsSellerlessProductsInProfileQuery(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(seedProduct("p1", "Ruler", domain.ProductActive, nil))

	got, err := m.ActiveBySellerProfile(SellerMatch{University: "Alexandria"}, nil, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("sellerless products must not match profile queries, got %+v", got)
	}
}

func TestMemoryStoreGetUserByID(t *testing.T) {
	m := NewMemoryStore()
	m.AddUser(domain.User{ID: "u1", Username: "aya"})

	u, ok, err := m.GetUserByID("u1")
	if err != nil || !ok || u.Username != "aya" {
		t.Fatalf("lookup mismatch: %+v %v %v", u, ok, err)
	}
	if _, ok, _ := m.GetUserByID("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

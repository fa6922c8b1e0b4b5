package domain

import "time"

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
	ProductSold     ProductStatus = "sold"
	ProductPending  ProductStatus = "pending"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// Seller is the subset of a marketplace user that travels with a product.
type Seller struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Location   string `json:"location,omitempty"`
	University string `json:"university,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog listing. This service only ever reads products.
type Product struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       float64       `json:"price"`
	Condition   Condition     `json:"condition"`
	Category    *Category     `json:"category,omitempty"`
	University  string        `json:"university"`
	Faculty     string        `json:"faculty"`
	Status      ProductStatus `json:"status"`
	Seller      *Seller       `json:"seller,omitempty"`
	ImageKey    string        `json:"-"`
	Images      []string      `json:"images,omitempty"`
	IsFeatured  bool          `json:"isFeatured"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// User is the authenticated caller whose profile drives personalization.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Location   string `json:"location"`
	University string `json:"university"`
	Faculty    string `json:"faculty"`
}

// SellerView is the seller projection embedded in a search result.
// Name falls back to "Unknown Seller" when the product has no seller.
type SellerView struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// SearchResult is the denormalized product+seller projection returned to
// callers. It has no identity of its own and is recomputed per request.
type SearchResult struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Condition   Condition  `json:"condition"`
	Category    string     `json:"category"`
	University  string     `json:"university"`
	Faculty     string     `json:"faculty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Seller      SellerView `json:"seller"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant reply. Products is present (possibly
// empty) whenever a catalog search ran, and omitted otherwise.
type ChatResponse struct {
	Reply    string          `json:"reply"`
	Products *[]SearchResult `json:"products,omitempty"`
}

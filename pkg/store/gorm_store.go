package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"classifieds/pkg/domain"
)

// GormStore implements Catalog using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &CategoryModel{}, &ProductModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SearchActiveByTitle returns active products whose title contains query.
func (s *GormStore) SearchActiveByTitle(query string, limit int) ([]domain.Product, error) {
	return s.searchActive("title ILIKE ?", query, limit)
}

// SearchActiveByDescription returns active products whose description contains query.
func (s *GormStore) SearchActiveByDescription(query string, limit int) ([]domain.Product, error) {
	return s.searchActive("description ILIKE ?", query, limit)
}

// SearchActiveByCategory returns active products whose category name contains query.
func (s *GormStore) SearchActiveByCategory(query string, limit int) ([]domain.Product, error) {
	var models []ProductModel
	err := s.db.Model(&ProductModel{}).
		Joins("JOIN category_models ON category_models.id = product_models.category_id").
		Where("product_models.status = ?", string(domain.ProductActive)).
		Where("category_models.name ILIKE ?", contains(query)).
		Order("product_models.created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return s.hydrate(models)
}

// ActiveBySellerProfile returns active products whose seller matches every
// field of m. Empty fields degrade to match-all, so widening passes can drop
// criteria by passing them empty.
func (s *GormStore) ActiveBySellerProfile(m SellerMatch, excludeIDs []string, limit int) ([]domain.Product, error) {
	tx := s.db.Model(&ProductModel{}).
		Joins("JOIN user_models ON user_models.id = product_models.seller_id").
		Where("product_models.status = ?", string(domain.ProductActive)).
		Where("user_models.location ILIKE ?", contains(m.Location)).
		Where("user_models.university ILIKE ?", contains(m.University)).
		Where("user_models.faculty ILIKE ?", contains(m.Faculty))
	if len(excludeIDs) > 0 {
		tx = tx.Where("product_models.id NOT IN ?", excludeIDs)
	}
	var models []ProductModel
	if err := tx.Order("product_models.created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return s.hydrate(models)
}

// GetUserByID returns a user profile by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) searchActive(cond string, query string, limit int) ([]domain.Product, error) {
	var models []ProductModel
	err := s.db.Where("status = ?", string(domain.ProductActive)).
		Where(cond, contains(query)).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return s.hydrate(models)
}

// hydrate attaches sellers and categories to product rows in two batch reads.
func (s *GormStore) hydrate(models []ProductModel) ([]domain.Product, error) {
	sellerIDs := make([]string, 0, len(models))
	categoryIDs := make([]string, 0, len(models))
	for _, m := range models {
		if m.SellerID != nil {
			sellerIDs = append(sellerIDs, *m.SellerID)
		}
		if m.CategoryID != nil {
			categoryIDs = append(categoryIDs, *m.CategoryID)
		}
	}
	sellers := map[string]UserModel{}
	if len(sellerIDs) > 0 {
		var rows []UserModel
		if err := s.db.Where("id IN ?", sellerIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			sellers[row.ID] = row
		}
	}
	categories := map[string]CategoryModel{}
	if len(categoryIDs) > 0 {
		var rows []CategoryModel
		if err := s.db.Where("id IN ?", categoryIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			categories[row.ID] = row
		}
	}

	products := make([]domain.Product, 0, len(models))
	for _, m := range models {
		product := productFromModel(m)
		if m.SellerID != nil {
			if row, ok := sellers[*m.SellerID]; ok {
				seller := sellerFromModel(row)
				product.Seller = &seller
			}
		}
		if m.CategoryID != nil {
			if row, ok := categories[*m.CategoryID]; ok {
				product.Category = &domain.Category{ID: row.ID, Name: row.Name}
			}
		}
		products = append(products, product)
	}
	return products, nil
}

// contains builds an ILIKE pattern matching the needle as a literal
// substring. LIKE metacharacters in the needle are escaped so "100%" does not
// turn into a wildcard; Postgres defaults the escape character to backslash.
func contains(needle string) string {
	return "%" + escapeLike(needle) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func productFromModel(m ProductModel) domain.Product {
	var images []string
	if len(m.Images) > 0 {
		_ = json.Unmarshal(m.Images, &images)
	}
	return domain.Product{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Price:       m.Price,
		Condition:   domain.Condition(m.Condition),
		University:  m.University,
		Faculty:     m.Faculty,
		Status:      domain.ProductStatus(m.Status),
		ImageKey:    m.ImageKey,
		Images:      images,
		IsFeatured:  m.IsFeatured,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func sellerFromModel(m UserModel) domain.Seller {
	name := m.Name
	if name == "" {
		name = m.Username
	}
	return domain.Seller{
		ID:         m.ID,
		Name:       name,
		Username:   m.Username,
		Location:   m.Location,
		University: m.University,
		Faculty:    m.Faculty,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Username:   m.Username,
		Email:      m.Email,
		Location:   m.Location,
		University: m.University,
		Faculty:    m.Faculty,
	}
}

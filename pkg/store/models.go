package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Username   string `gorm:"uniqueIndex;not null"`
	Email      string `gorm:"uniqueIndex;not null"`
	Location   string
	University string
	Faculty    string
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

type CategoryModel struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

type ProductModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`
	Price       float64 `gorm:"type:numeric(10,2);not null"`
	Condition   string
	CategoryID  *string `gorm:"index"`
	University  string
	Faculty     string
	Status      string  `gorm:"not null;index"`
	SellerID    *string `gorm:"index"`
	ImageKey    string
	Images      datatypes.JSON `gorm:"type:jsonb"`
	IsFeatured  bool
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

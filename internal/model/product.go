package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"storefront-service/internal/multitenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product statuses
const (
	ProductStatusDraft    = "draft"
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
	ProductStatusArchived = "archived"
)

// Product represents a catalog entry. Products are tenant-scoped: each
// company's products live exclusively in that company's store.
type Product struct {
	ID          string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(255);index;not null"`
	Slug        string `json:"slug" gorm:"type:varchar(280);index;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	Price     float64  `json:"price" gorm:"type:decimal(10,2);not null;default:0"`
	CostPrice *float64 `json:"cost_price,omitempty" gorm:"type:decimal(10,2)"`

	SKU      string `json:"sku,omitempty" gorm:"type:varchar(100);index"`
	Quantity int    `json:"quantity" gorm:"not null;default:0"`

	Status     string `json:"status" gorm:"type:varchar(20);index;not null;default:'draft'"`
	IsFeatured bool   `json:"is_featured" gorm:"not null;default:false"`

	MetaTitle       string `json:"meta_title,omitempty" gorm:"type:varchar(255)"`
	MetaDescription string `json:"meta_description,omitempty" gorm:"type:text"`

	// Audit fields reference user ids from the shared store by value only;
	// a relation across stores would be rejected by the router.
	CreatedBy string `json:"created_by,omitempty" gorm:"type:varchar(36)"`
	UpdatedBy string `json:"updated_by,omitempty" gorm:"type:varchar(36)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Images []ProductImage `json:"images,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (Product) TableName() string {
	return "products"
}

// StorageCategory classifies products as tenant-scoped data.
func (Product) StorageCategory() multitenant.EntityCategory {
	return multitenant.CategoryTenant
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = ProductStatusDraft
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a product name into a URL-safe slug
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// UniqueProductSlug derives a slug from the name and suffixes it with a
// counter until it is unique within the tenant store.
func UniqueProductSlug(db *gorm.DB, name, excludeID string) string {
	base := Slugify(name)
	slug := base
	for counter := 1; ; counter++ {
		var count int64
		db.Model(&Product{}).Where("slug = ? AND id != ?", slug, excludeID).Count(&count)
		if count == 0 {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

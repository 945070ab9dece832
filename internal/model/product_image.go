package model

import (
	"time"

	"storefront-service/internal/multitenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductImage stores image metadata per product, tenant-scoped alongside
// its product.
type ProductImage struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	ProductID string `json:"product_id" gorm:"type:varchar(36);index;not null"`
	Image     string `json:"image" gorm:"type:varchar(255);not null"`
	AltText   string `json:"alt_text,omitempty" gorm:"type:varchar(255)"`
	IsPrimary bool   `json:"is_primary" gorm:"not null;default:false"`
	SortOrder int    `json:"sort_order" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
}

func (ProductImage) TableName() string {
	return "product_images"
}

// StorageCategory classifies product images as tenant-scoped data.
func (ProductImage) StorageCategory() multitenant.EntityCategory {
	return multitenant.CategoryTenant
}

func (i *ProductImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// TenantModels lists the tenant-scoped models. The provisioner migrates
// exactly these into a new tenant store when the schema script is absent.
func TenantModels() []interface{} {
	return []interface{}{&Product{}, &ProductImage{}}
}

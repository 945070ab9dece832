package model

import (
	"time"

	"storefront-service/internal/multitenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company represents an organizational tenant. Companies live in the shared
// store; each active company owns an isolated tenant store for its catalog.
type Company struct {
	ID      string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name    string `json:"name" gorm:"type:varchar(255);not null"`
	Slug    string `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email   string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Phone   string `json:"phone,omitempty" gorm:"type:varchar(20)"`
	Address string `json:"address,omitempty" gorm:"type:text"`

	// DBName is the company's storage identifier, derived from the slug and
	// immutable once set.
	DBName string `json:"db_name" gorm:"type:varchar(100);uniqueIndex;not null"`

	// StorageReady reports whether the company's tenant store has been
	// provisioned and schema-initialized. A company can exist with
	// StorageReady=false when provisioning failed at registration;
	// provisioning is retryable later.
	StorageReady bool `json:"storage_ready" gorm:"default:false"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Company) TableName() string {
	return "companies"
}

// StorageCategory classifies companies as shared-store data.
func (Company) StorageCategory() multitenant.EntityCategory {
	return multitenant.CategoryShared
}

// BeforeCreate assigns the id and derives the storage identifier from the slug
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.DBName == "" {
		c.DBName = multitenant.Resolve(c.Slug)
	}
	return nil
}

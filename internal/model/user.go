package model

import (
	"strings"
	"time"

	"storefront-service/internal/multitenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents the user model stored in the shared store. Users are
// associated with a company (tenant).
type User struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password  string `json:"-" gorm:"type:varchar(255);not null"`
	FirstName string `json:"first_name" gorm:"type:varchar(150)"`
	LastName  string `json:"last_name" gorm:"type:varchar(150)"`

	CompanyID *string `json:"company_id,omitempty" gorm:"type:varchar(36);index"`

	// Role within the company: admin, manager or user
	Role string `json:"role" gorm:"type:varchar(20);default:'user'"`

	IsActive   bool `json:"is_active" gorm:"default:true"`
	IsVerified bool `json:"is_verified" gorm:"default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// StorageCategory classifies users as shared-store data.
func (User) StorageCategory() multitenant.EntityCategory {
	return multitenant.CategoryShared
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// FullName returns the user's full name, falling back to the email
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is a CRM operator who negotiates on behalf of brands
type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name        string `gorm:"not null;default:''"`
	AvatarURL   string
	Role        string `gorm:"not null;default:'member'"` // enum: 'member' or 'admin'
	LastLoginAt *time.Time

	// Associations
	AuthIdentities []AuthIdentity `gorm:"constraint:OnDelete:CASCADE;"`
}

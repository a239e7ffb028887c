package models

import (
	"time"

	"gorm.io/gorm"
)

// AuthIdentity links a User to an account at an OAuth provider. Provider
// tokens are not kept; the session only needs the local user id.
type AuthIdentity struct {
	gorm.Model
	UserID         uint   `gorm:"not null;index"`
	User           User   `gorm:"constraint:OnDelete:CASCADE;"`
	Provider       string `gorm:"not null;uniqueIndex:idx_auth_identities_provider_user,where:deleted_at IS NULL"` // e.g., "google"
	ProviderUserID string `gorm:"not null;uniqueIndex:idx_auth_identities_provider_user,where:deleted_at IS NULL"` // partial unique index
	LastSeenAt     *time.Time
}

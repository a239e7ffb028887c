package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/influencer-crm/internal/models"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"gorm.io/gorm"
)

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Set("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, upserts the user, and stores the
// local user id in the session.
func HandleCallback(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		q.Set("provider", "google")
		c.Request.URL.RawQuery = q.Encode()

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			slog.Warn("OAuth callback failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		user, err := upsertUser(db, gothUser)
		if err != nil {
			slog.Error("Failed to upsert user", "email", gothUser.Email, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store user"})
			return
		}

		session := sessions.Default(c)
		session.Set(sessionUserID, user.ID)
		session.Set(sessionUserEmail, user.Email)
		session.Set(sessionUserName, user.Name)

		if err := session.Save(); err != nil {
			slog.Error("Session save failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
			return
		}

		slog.Info("User authenticated", "user_id", user.ID, "email", user.Email)
		c.Redirect(http.StatusFound, "/")
	}
}

// HandleLogout clears the session
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		slog.Warn("Session clear failed", "error", err)
	}

	c.Status(http.StatusNoContent)
}

// upsertUser finds or creates the user for an OAuth identity and records the login.
func upsertUser(db *gorm.DB, gothUser goth.User) (*models.User, error) {
	if gothUser.Email == "" {
		return nil, fmt.Errorf("provider returned no email")
	}

	now := time.Now().UTC()
	var user models.User

	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("email = ?", gothUser.Email).First(&user)
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			user = models.User{
				Email:       gothUser.Email,
				Name:        gothUser.Name,
				AvatarURL:   gothUser.AvatarURL,
				Role:        models.RoleMember,
				LastLoginAt: &now,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
		case result.Error != nil:
			return fmt.Errorf("failed to find user: %w", result.Error)
		default:
			if err := tx.Model(&user).Updates(map[string]interface{}{
				"name":          gothUser.Name,
				"avatar_url":    gothUser.AvatarURL,
				"last_login_at": now,
			}).Error; err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
		}

		var identity models.AuthIdentity
		result = tx.Where("provider = ? AND provider_user_id = ?", gothUser.Provider, gothUser.UserID).First(&identity)
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			identity = models.AuthIdentity{
				UserID:         user.ID,
				Provider:       gothUser.Provider,
				ProviderUserID: gothUser.UserID,
				LastSeenAt:     &now,
			}
			return tx.Create(&identity).Error
		case result.Error != nil:
			return fmt.Errorf("failed to find auth identity: %w", result.Error)
		default:
			return tx.Model(&identity).Update("last_seen_at", now).Error
		}
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jimdaga/influencer-crm/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InitTemplates discovers templates from dir, upserts them into
// outreach_templates and returns the in-memory registry. Failing to sync a
// single template is logged, not fatal.
func InitTemplates(ctx context.Context, db *gorm.DB, dir string) (*Registry, error) {
	registry, err := LoadRegistry(dir)
	if err != nil {
		return nil, err
	}

	slog.Info("Discovered outreach templates", "count", registry.Count(), "dir", dir)

	for _, m := range registry.List() {
		if err := syncTemplateToDB(ctx, db, m); err != nil {
			slog.Warn("Failed to sync template to database", "template", m.Name, "error", err)
			continue
		}
	}

	return registry, nil
}

// syncTemplateToDB creates the stored copy of a template or updates it in place.
func syncTemplateToDB(ctx context.Context, db *gorm.DB, m *Manifest) error {
	variables, err := json.Marshal(m.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	db = db.WithContext(ctx)

	var stored models.OutreachTemplate
	result := db.Where("name = ?", m.Name).First(&stored)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		stored = models.OutreachTemplate{
			Name:       m.Name,
			Type:       m.Type,
			Subject:    m.Subject,
			Body:       m.Body,
			Variables:  datatypes.JSON(variables),
			SourcePath: m.Path,
			Enabled:    true,
		}
		return db.Create(&stored).Error
	} else if result.Error != nil {
		return result.Error
	}

	return db.Model(&stored).Updates(map[string]interface{}{
		"type":        m.Type,
		"subject":     m.Subject,
		"body":        m.Body,
		"variables":   datatypes.JSON(variables),
		"source_path": m.Path,
	}).Error
}

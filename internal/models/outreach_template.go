package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutreachTemplate is the stored copy of a template manifest
type OutreachTemplate struct {
	gorm.Model
	Name       string `gorm:"uniqueIndex;not null"`
	Type       string `gorm:"not null"`
	Subject    string
	Body       string `gorm:"type:text;not null"`
	Variables  datatypes.JSON
	SourcePath string
	Enabled    bool `gorm:"default:true"`
}

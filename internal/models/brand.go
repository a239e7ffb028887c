package models

import "gorm.io/gorm"

// Brand is the advertiser side of an engagement
type Brand struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Website      string
	ContactName  string
	ContactEmail string
	Notes        string `gorm:"type:text"`
}

// Influencer is the creator side of an engagement
type Influencer struct {
	gorm.Model
	Name            string `gorm:"not null"`
	Email           string
	InstagramHandle string `gorm:"index"`
	TikTokHandle    string
	YouTubeChannel  string
	FollowerCount   int64
	Notes           string `gorm:"type:text"`
}

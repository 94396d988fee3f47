package models

import "time"

// HeroImage is a rotating banner on the home feed.
type HeroImage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `gorm:"type:varchar(500);not null" json:"image_url"`
	LinkURL     string    `gorm:"type:varchar(500)" json:"link_url,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import "time"

const (
	AdvertPositionBanner  = "banner"
	AdvertPositionSidebar = "sidebar"
	AdvertPositionFeed    = "feed"
)

// Advert is sponsor content shown between feed sections.
type Advert struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `gorm:"type:varchar(500);not null" json:"image_url"`
	LinkURL     string    `gorm:"type:varchar(500)" json:"link_url"`
	Position    string    `gorm:"type:varchar(50);default:'feed';index" json:"position"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

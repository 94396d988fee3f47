package models

import "time"

// Movie is a standalone catalog title. VideoKey and poster/trailer URLs
// point into the media bucket; playback URLs are presigned on demand.
type Movie struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"type:varchar(255);not null;index" json:"title"`
	Description       string    `gorm:"type:text" json:"description"`
	PosterURL         string    `gorm:"type:varchar(500)" json:"poster_url"`
	VideoKey          string    `gorm:"type:varchar(500)" json:"-"`
	TrailerURL        string    `gorm:"type:varchar(500)" json:"trailer_url,omitempty"`
	Rating            float32   `gorm:"default:0" json:"rating"`
	DurationMinutes   int       `gorm:"default:0" json:"duration_minutes"`
	Genre             string    `gorm:"type:varchar(100);index" json:"genre"`
	ReleaseYear       int       `json:"release_year"`
	DisplayCategories string    `gorm:"type:varchar(500)" json:"display_categories"`
	IsFeatured        bool      `gorm:"default:false;index" json:"is_featured"`
	ViewCount         int64     `gorm:"default:0" json:"view_count"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Categories splits the comma-separated display category list.
func (m *Movie) Categories() []string {
	return splitCategories(m.DisplayCategories)
}

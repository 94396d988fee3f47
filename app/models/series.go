package models

import (
	"strings"
	"time"
)

// Series is a multi-season catalog title; its playable content lives in
// Episode rows.
type Series struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"type:varchar(255);not null;index" json:"title"`
	Description       string    `gorm:"type:text" json:"description"`
	PosterURL         string    `gorm:"type:varchar(500)" json:"poster_url"`
	TrailerURL        string    `gorm:"type:varchar(500)" json:"trailer_url,omitempty"`
	Rating            float32   `gorm:"default:0" json:"rating"`
	Genre             string    `gorm:"type:varchar(100);index" json:"genre"`
	ReleaseYear       int       `json:"release_year"`
	Seasons           int       `gorm:"default:1" json:"seasons"`
	DisplayCategories string    `gorm:"type:varchar(500)" json:"display_categories"`
	IsFeatured        bool      `gorm:"default:false;index" json:"is_featured"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Categories splits the comma-separated display category list.
func (s *Series) Categories() []string {
	return splitCategories(s.DisplayCategories)
}

func splitCategories(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.TrimSpace(p); c != "" {
			out = append(out, c)
		}
	}
	return out
}

package models

import "time"

// Episode belongs to a Series season.
type Episode struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SeriesID        uint      `gorm:"not null;index:idx_episodes_series_season,priority:1" json:"series_id"`
	SeasonNumber    int       `gorm:"not null;index:idx_episodes_series_season,priority:2" json:"season_number"`
	EpisodeNumber   int       `gorm:"not null" json:"episode_number"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	ThumbnailURL    string    `gorm:"type:varchar(500)" json:"thumbnail_url"`
	VideoKey        string    `gorm:"type:varchar(500)" json:"-"`
	DurationMinutes int       `gorm:"default:0" json:"duration_minutes"`
	ViewCount       int64     `gorm:"default:0" json:"view_count"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

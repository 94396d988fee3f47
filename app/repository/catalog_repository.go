package repository

import (
	"github.com/globalnexus/streamvault/app/models"
	"gorm.io/gorm"
)

// catalogRepository implements the CatalogRepository interface
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository instance
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// CreateMovie creates a new movie in the database
func (r *catalogRepository) CreateMovie(movie *models.Movie) error {
	return r.db.Create(movie).Error
}

// GetMovieByID retrieves a movie by its ID
func (r *catalogRepository) GetMovieByID(id uint) (*models.Movie, error) {
	var movie models.Movie
	if err := r.db.First(&movie, id).Error; err != nil {
		return nil, err
	}
	return &movie, nil
}

// UpdateMovie updates an existing movie
func (r *catalogRepository) UpdateMovie(movie *models.Movie) error {
	return r.db.Save(movie).Error
}

// DeleteMovie deletes a movie by its ID
func (r *catalogRepository) DeleteMovie(id uint) error {
	return r.db.Delete(&models.Movie{}, id).Error
}

// ListMovies retrieves a paginated list of movies
func (r *catalogRepository) ListMovies(offset, limit int) ([]models.Movie, error) {
	var movies []models.Movie
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&movies).Error
	return movies, err
}

// FeaturedMovies retrieves featured movies for the home feed
func (r *catalogRepository) FeaturedMovies(limit int) ([]models.Movie, error) {
	var movies []models.Movie
	err := r.db.Where("is_featured = ?", true).Order("created_at DESC").Limit(limit).Find(&movies).Error
	return movies, err
}

// RecentMovies retrieves the most recently added movies
func (r *catalogRepository) RecentMovies(limit int) ([]models.Movie, error) {
	var movies []models.Movie
	err := r.db.Order("created_at DESC").Limit(limit).Find(&movies).Error
	return movies, err
}

// SearchMovies finds movies by title or genre
func (r *catalogRepository) SearchMovies(query string) ([]models.Movie, error) {
	var movies []models.Movie
	like := "%" + query + "%"
	err := r.db.Where("title LIKE ? OR genre LIKE ?", like, like).
		Order("created_at DESC").Limit(50).Find(&movies).Error
	return movies, err
}

// CountMovies returns the total number of movies
func (r *catalogRepository) CountMovies() (int64, error) {
	var count int64
	err := r.db.Model(&models.Movie{}).Count(&count).Error
	return count, err
}

// CreateSeries creates a new series in the database
func (r *catalogRepository) CreateSeries(series *models.Series) error {
	return r.db.Create(series).Error
}

// GetSeriesByID retrieves a series by its ID
func (r *catalogRepository) GetSeriesByID(id uint) (*models.Series, error) {
	var series models.Series
	if err := r.db.First(&series, id).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

// UpdateSeries updates an existing series
func (r *catalogRepository) UpdateSeries(series *models.Series) error {
	return r.db.Save(series).Error
}

// DeleteSeries deletes a series and its episodes
func (r *catalogRepository) DeleteSeries(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("series_id = ?", id).Delete(&models.Episode{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Series{}, id).Error
	})
}

// ListSeries retrieves a paginated list of series
func (r *catalogRepository) ListSeries(offset, limit int) ([]models.Series, error) {
	var series []models.Series
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&series).Error
	return series, err
}

// FeaturedSeries retrieves featured series for the home feed
func (r *catalogRepository) FeaturedSeries(limit int) ([]models.Series, error) {
	var series []models.Series
	err := r.db.Where("is_featured = ?", true).Order("created_at DESC").Limit(limit).Find(&series).Error
	return series, err
}

// SearchSeries finds series by title or genre
func (r *catalogRepository) SearchSeries(query string) ([]models.Series, error) {
	var series []models.Series
	like := "%" + query + "%"
	err := r.db.Where("title LIKE ? OR genre LIKE ?", like, like).
		Order("created_at DESC").Limit(50).Find(&series).Error
	return series, err
}

// CountSeries returns the total number of series
func (r *catalogRepository) CountSeries() (int64, error) {
	var count int64
	err := r.db.Model(&models.Series{}).Count(&count).Error
	return count, err
}

// CreateEpisode creates a new episode in the database
func (r *catalogRepository) CreateEpisode(episode *models.Episode) error {
	return r.db.Create(episode).Error
}

// GetEpisodeByID retrieves an episode by its ID
func (r *catalogRepository) GetEpisodeByID(id uint) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.First(&episode, id).Error; err != nil {
		return nil, err
	}
	return &episode, nil
}

// UpdateEpisode updates an existing episode
func (r *catalogRepository) UpdateEpisode(episode *models.Episode) error {
	return r.db.Save(episode).Error
}

// DeleteEpisode deletes an episode by its ID
func (r *catalogRepository) DeleteEpisode(id uint) error {
	return r.db.Delete(&models.Episode{}, id).Error
}

// EpisodesBySeries retrieves all episodes of a series ordered by season and number
func (r *catalogRepository) EpisodesBySeries(seriesID uint) ([]models.Episode, error) {
	var episodes []models.Episode
	err := r.db.Where("series_id = ?", seriesID).
		Order("season_number ASC, episode_number ASC").Find(&episodes).Error
	return episodes, err
}

// EpisodesBySeason retrieves one season of a series
func (r *catalogRepository) EpisodesBySeason(seriesID uint, season int) ([]models.Episode, error) {
	var episodes []models.Episode
	err := r.db.Where("series_id = ? AND season_number = ?", seriesID, season).
		Order("episode_number ASC").Find(&episodes).Error
	return episodes, err
}

// CreateHeroImage creates a new hero banner
func (r *catalogRepository) CreateHeroImage(hero *models.HeroImage) error {
	return r.db.Create(hero).Error
}

// DeleteHeroImage deletes a hero banner by its ID
func (r *catalogRepository) DeleteHeroImage(id uint) error {
	return r.db.Delete(&models.HeroImage{}, id).Error
}

// ListHeroImages retrieves all hero banners, newest first
func (r *catalogRepository) ListHeroImages() ([]models.HeroImage, error) {
	var heroes []models.HeroImage
	err := r.db.Order("created_at DESC").Find(&heroes).Error
	return heroes, err
}

// CreateAdvert creates a new advert
func (r *catalogRepository) CreateAdvert(advert *models.Advert) error {
	return r.db.Create(advert).Error
}

// DeleteAdvert deletes an advert by its ID
func (r *catalogRepository) DeleteAdvert(id uint) error {
	return r.db.Delete(&models.Advert{}, id).Error
}

// ListAdverts retrieves adverts, optionally filtered by position
func (r *catalogRepository) ListAdverts(position string) ([]models.Advert, error) {
	var adverts []models.Advert
	q := r.db.Order("created_at DESC")
	if position != "" {
		q = q.Where("position = ?", position)
	}
	err := q.Find(&adverts).Error
	return adverts, err
}

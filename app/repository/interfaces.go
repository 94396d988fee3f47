package repository

import (
	"github.com/globalnexus/streamvault/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByPublicID(publicID string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// CatalogRepository defines the interface for catalog database operations
type CatalogRepository interface {
	CreateMovie(movie *models.Movie) error
	GetMovieByID(id uint) (*models.Movie, error)
	UpdateMovie(movie *models.Movie) error
	DeleteMovie(id uint) error
	ListMovies(offset, limit int) ([]models.Movie, error)
	FeaturedMovies(limit int) ([]models.Movie, error)
	RecentMovies(limit int) ([]models.Movie, error)
	SearchMovies(query string) ([]models.Movie, error)
	CountMovies() (int64, error)

	CreateSeries(series *models.Series) error
	GetSeriesByID(id uint) (*models.Series, error)
	UpdateSeries(series *models.Series) error
	DeleteSeries(id uint) error
	ListSeries(offset, limit int) ([]models.Series, error)
	FeaturedSeries(limit int) ([]models.Series, error)
	SearchSeries(query string) ([]models.Series, error)
	CountSeries() (int64, error)

	CreateEpisode(episode *models.Episode) error
	GetEpisodeByID(id uint) (*models.Episode, error)
	UpdateEpisode(episode *models.Episode) error
	DeleteEpisode(id uint) error
	EpisodesBySeries(seriesID uint) ([]models.Episode, error)
	EpisodesBySeason(seriesID uint, season int) ([]models.Episode, error)

	CreateHeroImage(hero *models.HeroImage) error
	DeleteHeroImage(id uint) error
	ListHeroImages() ([]models.HeroImage, error)

	CreateAdvert(advert *models.Advert) error
	DeleteAdvert(id uint) error
	ListAdverts(position string) ([]models.Advert, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User    UserRepository
	Catalog CatalogRepository
}

// NewRepositories creates instances of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Catalog: NewCatalogRepository(db),
	}
}

package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/cache"
)

const (
	homeFeedCacheKey = "home_feed"
	homeFeedCacheTTL = 2 * time.Minute

	feedSectionLimit = 20
)

// homeFeed is the assembled home page payload.
type homeFeed struct {
	HeroImages     []models.HeroImage        `json:"hero_images"`
	FeaturedMovies []models.Movie            `json:"featured_movies"`
	FeaturedSeries []models.Series           `json:"featured_series"`
	RecentMovies   []models.Movie            `json:"recent_movies"`
	Categories     map[string][]models.Movie `json:"categories"`
	Adverts        []models.Advert           `json:"adverts"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

// HandleHomeFeed serves the aggregated home feed, cached in Redis so
// repeated page loads skip the database entirely.
func HandleHomeFeed(c *fiber.Ctx) error {
	var feed homeFeed
	if err := cache.GetJSON(homeFeedCacheKey, &feed); err == nil {
		c.Set("X-Cache", "hit")
		return c.JSON(feed)
	}

	feed, err := buildHomeFeed()
	if err != nil {
		log.Errorf("[Home] building feed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load the home feed")
	}

	if err := cache.SetJSON(homeFeedCacheKey, feed, homeFeedCacheTTL); err != nil {
		log.Warnf("[Home] caching feed: %v", err)
	}

	c.Set("X-Cache", "miss")
	return c.JSON(feed)
}

func buildHomeFeed() (homeFeed, error) {
	catalog := repository.GetGlobalRepositories().Catalog
	feed := homeFeed{GeneratedAt: time.Now()}

	var err error
	if feed.HeroImages, err = catalog.ListHeroImages(); err != nil {
		return feed, err
	}
	if feed.FeaturedMovies, err = catalog.FeaturedMovies(feedSectionLimit); err != nil {
		return feed, err
	}
	if feed.FeaturedSeries, err = catalog.FeaturedSeries(feedSectionLimit); err != nil {
		return feed, err
	}
	if feed.RecentMovies, err = catalog.RecentMovies(feedSectionLimit); err != nil {
		return feed, err
	}
	if feed.Adverts, err = catalog.ListAdverts(""); err != nil {
		return feed, err
	}

	// Group recent titles into their display categories. A movie may appear
	// in several sections.
	feed.Categories = make(map[string][]models.Movie)
	movies, err := catalog.ListMovies(0, 200)
	if err != nil {
		return feed, err
	}
	for _, movie := range movies {
		for _, category := range movie.Categories() {
			if len(feed.Categories[category]) < feedSectionLimit {
				feed.Categories[category] = append(feed.Categories[category], movie)
			}
		}
	}

	return feed, nil
}

// InvalidateHomeFeed drops the cached feed after an admin catalog change.
func InvalidateHomeFeed() {
	if err := cache.Delete(homeFeedCacheKey); err != nil {
		log.Warnf("[Home] invalidating feed cache: %v", err)
	}
}

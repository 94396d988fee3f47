package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/globalnexus/streamvault/app/repository"
)

const defaultPageSize = 24

func pagination(c *fiber.Ctx) (offset, limit int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defaultPageSize)))
	if limit < 1 || limit > 100 {
		limit = defaultPageSize
	}
	return (page - 1) * limit, limit
}

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// HandleListMovies lists movies, optionally filtered by a search query.
func HandleListMovies(c *fiber.Ctx) error {
	catalog := repository.GetGlobalRepositories().Catalog

	if q := c.Query("q"); q != "" {
		movies, err := catalog.SearchMovies(q)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal", "could not search movies")
		}
		return c.JSON(fiber.Map{"movies": movies})
	}

	offset, limit := pagination(c)
	movies, err := catalog.ListMovies(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not list movies")
	}
	total, _ := catalog.CountMovies()
	return c.JSON(fiber.Map{"movies": movies, "total": total})
}

// HandleGetMovie serves one movie.
func HandleGetMovie(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid movie id")
	}

	movie, err := repository.GetGlobalRepositories().Catalog.GetMovieByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "movie not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load movie")
	}
	return c.JSON(movie)
}

// HandleListSeries lists series, optionally filtered by a search query.
func HandleListSeries(c *fiber.Ctx) error {
	catalog := repository.GetGlobalRepositories().Catalog

	if q := c.Query("q"); q != "" {
		series, err := catalog.SearchSeries(q)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal", "could not search series")
		}
		return c.JSON(fiber.Map{"series": series})
	}

	offset, limit := pagination(c)
	series, err := catalog.ListSeries(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not list series")
	}
	total, _ := catalog.CountSeries()
	return c.JSON(fiber.Map{"series": series, "total": total})
}

// HandleGetSeries serves one series with all of its episodes.
func HandleGetSeries(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid series id")
	}

	catalog := repository.GetGlobalRepositories().Catalog
	series, err := catalog.GetSeriesByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "series not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load series")
	}

	episodes, err := catalog.EpisodesBySeries(id)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load episodes")
	}
	return c.JSON(fiber.Map{"series": series, "episodes": episodes})
}

// HandleListSeason serves one season of a series.
func HandleListSeason(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid series id")
	}
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil || season < 1 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid season number")
	}

	episodes, err := repository.GetGlobalRepositories().Catalog.EpisodesBySeason(id, season)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load episodes")
	}
	return c.JSON(fiber.Map{"episodes": episodes})
}

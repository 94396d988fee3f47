package controllers

import (
	"errors"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/database"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/media"
	"github.com/globalnexus/streamvault/internal/pkg/utils"
)

// HandleAdminCreateMovie creates a movie.
func HandleAdminCreateMovie(c *fiber.Ctx) error {
	var movie models.Movie
	if err := c.BodyParser(&movie); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if strings.TrimSpace(movie.Title) == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "title is required")
	}
	movie.ID = 0

	if err := repository.GetGlobalRepositories().Catalog.CreateMovie(&movie); err != nil {
		log.Errorf("[Admin] creating movie: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create movie")
	}
	InvalidateHomeFeed()
	return c.Status(fiber.StatusCreated).JSON(movie)
}

// HandleAdminUpdateMovie updates a movie.
func HandleAdminUpdateMovie(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid movie id")
	}

	catalog := repository.GetGlobalRepositories().Catalog
	movie, err := catalog.GetMovieByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "movie not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load movie")
	}

	if err := c.BodyParser(movie); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	movie.ID = id

	if err := catalog.UpdateMovie(movie); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not update movie")
	}
	InvalidateHomeFeed()
	return c.JSON(movie)
}

// HandleAdminDeleteMovie deletes a movie.
func HandleAdminDeleteMovie(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid movie id")
	}
	if err := repository.GetGlobalRepositories().Catalog.DeleteMovie(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not delete movie")
	}
	InvalidateHomeFeed()
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminCreateSeries creates a series.
func HandleAdminCreateSeries(c *fiber.Ctx) error {
	var series models.Series
	if err := c.BodyParser(&series); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if strings.TrimSpace(series.Title) == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "title is required")
	}
	series.ID = 0

	if err := repository.GetGlobalRepositories().Catalog.CreateSeries(&series); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create series")
	}
	InvalidateHomeFeed()
	return c.Status(fiber.StatusCreated).JSON(series)
}

// HandleAdminUpdateSeries updates a series.
func HandleAdminUpdateSeries(c *fiber.Ctx) error {
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

	if err := c.BodyParser(series); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	series.ID = id

	if err := catalog.UpdateSeries(series); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not update series")
	}
	InvalidateHomeFeed()
	return c.JSON(series)
}

// HandleAdminDeleteSeries deletes a series and its episodes.
func HandleAdminDeleteSeries(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid series id")
	}
	if err := repository.GetGlobalRepositories().Catalog.DeleteSeries(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not delete series")
	}
	InvalidateHomeFeed()
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminCreateEpisode creates an episode under a series.
func HandleAdminCreateEpisode(c *fiber.Ctx) error {
	var episode models.Episode
	if err := c.BodyParser(&episode); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if episode.SeriesID == 0 || episode.SeasonNumber < 1 || episode.EpisodeNumber < 1 {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "series_id, season_number and episode_number are required")
	}
	episode.ID = 0

	catalog := repository.GetGlobalRepositories().Catalog
	if _, err := catalog.GetSeriesByID(episode.SeriesID); errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "series does not exist")
	}

	if err := catalog.CreateEpisode(&episode); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create episode")
	}
	return c.Status(fiber.StatusCreated).JSON(episode)
}

// HandleAdminUpdateEpisode updates an episode.
func HandleAdminUpdateEpisode(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid episode id")
	}

	catalog := repository.GetGlobalRepositories().Catalog
	episode, err := catalog.GetEpisodeByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "episode not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load episode")
	}

	if err := c.BodyParser(episode); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	episode.ID = id

	if err := catalog.UpdateEpisode(episode); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not update episode")
	}
	return c.JSON(episode)
}

// HandleAdminDeleteEpisode deletes an episode.
func HandleAdminDeleteEpisode(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid episode id")
	}
	if err := repository.GetGlobalRepositories().Catalog.DeleteEpisode(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not delete episode")
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminCreateHeroImage creates a home feed banner.
func HandleAdminCreateHeroImage(c *fiber.Ctx) error {
	var hero models.HeroImage
	if err := c.BodyParser(&hero); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if strings.TrimSpace(hero.ImageURL) == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "image_url is required")
	}
	hero.ID = 0

	if err := repository.GetGlobalRepositories().Catalog.CreateHeroImage(&hero); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create hero image")
	}
	InvalidateHomeFeed()
	return c.Status(fiber.StatusCreated).JSON(hero)
}

// HandleAdminDeleteHeroImage deletes a banner.
func HandleAdminDeleteHeroImage(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid hero image id")
	}
	if err := repository.GetGlobalRepositories().Catalog.DeleteHeroImage(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not delete hero image")
	}
	InvalidateHomeFeed()
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminCreateAdvert creates sponsor content.
func HandleAdminCreateAdvert(c *fiber.Ctx) error {
	var advert models.Advert
	if err := c.BodyParser(&advert); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if strings.TrimSpace(advert.ImageURL) == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "image_url is required")
	}
	advert.ID = 0

	if err := repository.GetGlobalRepositories().Catalog.CreateAdvert(&advert); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create advert")
	}
	InvalidateHomeFeed()
	return c.Status(fiber.StatusCreated).JSON(advert)
}

// HandleAdminDeleteAdvert deletes sponsor content.
func HandleAdminDeleteAdvert(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid advert id")
	}
	if err := repository.GetGlobalRepositories().Catalog.DeleteAdvert(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not delete advert")
	}
	InvalidateHomeFeed()
	return c.JSON(fiber.Map{"ok": true})
}

type uploadRequest struct {
	Kind        string `json:"kind"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

var uploadKinds = map[string]bool{
	"movies":   true,
	"episodes": true,
	"posters":  true,
	"heroes":   true,
	"adverts":  true,
}

// HandleAdminPresignUpload hands the admin client a presigned PUT URL so
// video files go straight to the bucket instead of through this process.
func HandleAdminPresignUpload(c *fiber.Ctx) error {
	client := media.GetClient()
	if client == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "media_unavailable", "media storage is not configured")
	}

	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if !uploadKinds[req.Kind] {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "unknown upload kind")
	}
	if req.ContentType == "" {
		req.ContentType = "application/octet-stream"
	}

	ext := path.Ext(req.FileName)
	cfg := client.Config()

	var objectKey string
	if req.Kind == "movies" || req.Kind == "episodes" {
		objectKey = cfg.VideoObjectKey(req.Kind, uuid.New().String(), ext)
	} else {
		objectKey = cfg.ImageObjectKey(req.Kind, uuid.New().String(), ext)
	}

	uploadURL, err := client.PresignUpload(c.Context(), objectKey, req.ContentType)
	if err != nil {
		log.Errorf("[Admin] presigning upload %s: %v", objectKey, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create upload URL")
	}

	return c.JSON(fiber.Map{
		"upload_url": uploadURL,
		"object_key": objectKey,
		"expires_in": int(media.UploadURLTTL.Seconds()),
	})
}

// HandleAdminListUsers lists accounts together with their subscription
// state for the admin dashboard.
func HandleAdminListUsers(c *fiber.Ctx) error {
	offset, limit := pagination(c)

	userRepo := repository.GetGlobalRepositories().User
	var users []models.User
	var err error
	if q := c.Query("q"); q != "" {
		users, err = userRepo.Search(q)
	} else {
		users, err = userRepo.List(offset, limit)
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not list users")
	}

	store := entitlements.NewStore(database.GetDB())
	type userWithSubscription struct {
		models.User
		AvatarURL    string                    `json:"avatar_url"`
		Subscription *entitlements.Entitlement `json:"subscription"`
	}
	out := make([]userWithSubscription, 0, len(users))
	for i := range users {
		ent, err := store.Current(users[i].ID)
		if err != nil {
			log.Warnf("[Admin] loading entitlement for user %d: %v", users[i].ID, err)
		}
		out = append(out, userWithSubscription{
			User:         users[i],
			AvatarURL:    utils.GetGravatarURL(users[i].Email, 80),
			Subscription: ent,
		})
	}

	total, _ := userRepo.Count()
	return c.JSON(fiber.Map{"users": out, "total": total})
}

package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/media"
	"github.com/globalnexus/streamvault/internal/pkg/metrics/counter"
)

// HandleWatch resolves a playable title to a short-lived presigned stream
// URL. The route sits behind the subscription middleware; by the time this
// runs the caller is entitled.
func HandleWatch(c *fiber.Ctx) error {
	client := media.GetClient()
	if client == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "media_unavailable", "streaming is not available right now")
	}

	id, err := idParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid title id")
	}

	catalog := repository.GetGlobalRepositories().Catalog
	var videoKey string
	var countView func()
	switch c.Params("type") {
	case "movie":
		movie, err := catalog.GetMovieByID(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "movie not found")
		}
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load movie")
		}
		videoKey = movie.VideoKey
		countView = func() {
			if err := counter.AddMovieView(movie.ID); err != nil {
				log.Warnf("[Watch] counting view for movie %d: %v", movie.ID, err)
			}
		}
	case "episode":
		episode, err := catalog.GetEpisodeByID(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "episode not found")
		}
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load episode")
		}
		videoKey = episode.VideoKey
		countView = func() {
			if err := counter.AddEpisodeView(episode.ID); err != nil {
				log.Warnf("[Watch] counting view for episode %d: %v", episode.ID, err)
			}
		}
	default:
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "type must be movie or episode")
	}

	if videoKey == "" {
		return jsonError(c, fiber.StatusNotFound, "no_video", "this title has no playable video yet")
	}

	streamURL, err := client.PresignStream(c.Context(), videoKey)
	if err != nil {
		log.Errorf("[Watch] presigning %s: %v", videoKey, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not create stream URL")
	}

	countView()

	return c.JSON(fiber.Map{
		"stream_url": streamURL,
		"expires_in": int(media.StreamURLTTL.Seconds()),
	})
}

package media

import (
	"github.com/gofiber/fiber/v2/log"
)

var client *Client

// Setup initializes the process-wide media client. When media storage is
// disabled the client stays nil and callers must treat media features as
// unavailable.
func Setup() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if !cfg.IsEnabled() {
		log.Info("[Media] media storage disabled, streaming and uploads unavailable")
		return nil
	}

	c, err := NewClient(cfg)
	if err != nil {
		return err
	}
	client = c
	return nil
}

// GetClient returns the process-wide media client, nil when disabled.
func GetClient() *Client {
	return client
}

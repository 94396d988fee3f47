package media

import (
	"errors"
	"fmt"

	"github.com/globalnexus/streamvault/internal/pkg/env"
)

// Config holds media storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads media storage configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("MEDIA_STORAGE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when media storage is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when media storage is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when media storage is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if media storage is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// VideoObjectKey generates a standardized S3 object key for a video asset
func (c *Config) VideoObjectKey(kind, assetUUID, fileExtension string) string {
	// Format: videos/<movies|episodes>/UUID.ext
	return fmt.Sprintf("videos/%s/%s%s", kind, assetUUID, fileExtension)
}

// ImageObjectKey generates a standardized S3 object key for artwork
func (c *Config) ImageObjectKey(kind, assetUUID, fileExtension string) string {
	return fmt.Sprintf("images/%s/%s%s", kind, assetUUID, fileExtension)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}

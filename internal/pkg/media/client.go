package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

const (
	// UploadURLTTL bounds how long an admin has to start a presigned upload.
	UploadURLTTL = 15 * time.Minute

	// StreamURLTTL bounds how long a playback URL stays valid. Long enough
	// to watch a feature film in one sitting.
	StreamURLTTL = 4 * time.Hour
)

// Client wraps the S3 client with media-library functionality. Video files
// never pass through the application server: admins upload straight to the
// bucket with a presigned PUT and viewers stream with a presigned GET.
type Client struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   *Config
}

// NewClient creates a new media storage client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("media storage is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// Backblaze B2 specific settings
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		presign:  s3.NewPresignClient(s3Client),
		config:   cfg,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Media] Successfully initialized S3 client for bucket: %s", cfg.GetBucketName())
	return client, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.config
}

// testConnection tests the S3 connection by checking if the bucket exists
func (c *Client) testConnection() error {
	ctx := context.Background()
	bucketName := c.config.GetBucketName()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})

	if err != nil {
		// If bucket doesn't exist, try to create it (for development)
		if GetAppEnv() != "prod" {
			log.Warnf("[Media] Bucket %s not found, attempting to create it", bucketName)
			return c.createBucket(bucketName)
		}
		return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
	}

	return nil
}

// createBucket creates a new S3 bucket (dev/staging only)
func (c *Client) createBucket(bucketName string) error {
	ctx := context.Background()

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}

	// For AWS regions other than us-east-1 the location constraint must be
	// explicit. Backblaze B2 rejects it.
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}

	_, err := c.s3Client.CreateBucket(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("[Media] Successfully created bucket: %s", bucketName)
	return nil
}

// PresignUpload returns a presigned PUT URL for a new media object.
func (c *Client) PresignUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.GetBucketName()),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(UploadURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// PresignStream returns a presigned GET URL for playback of a media object.
func (c *Client) PresignStream(ctx context.Context, objectKey string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.GetBucketName()),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(StreamURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign stream for %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// DeleteObject deletes a media object from S3
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.config.GetBucketName()),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	log.Infof("[Media] Successfully deleted: s3://%s/%s", c.config.GetBucketName(), objectKey)
	return nil
}

// ObjectExists checks if an object exists in S3
func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.config.GetBucketName()),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

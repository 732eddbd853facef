package minio

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config defines the object storage configuration
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("minio: credentials are required")
	}
	if c.Bucket == "" {
		return errors.New("minio: bucket is required")
	}
	return nil
}

// Client wraps the MinIO SDK client for a single bucket
type Client struct {
	client *minio.Client
	config *Config
	logger *zap.Logger
}

// NewClient creates a MinIO client and ensures the configured bucket exists
func NewClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("minio: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: failed to create client: %w", err)
	}

	client := &Client{
		client: mc,
		config: cfg,
		logger: logger,
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio: bucket check failed: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio: failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	logger.Info("minio client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)

	return client, nil
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// Ping verifies connectivity by checking the bucket
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.config.Bucket)
	return err
}

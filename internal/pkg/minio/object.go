package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// UploadInfo describes a stored object
type UploadInfo struct {
	Key  string
	Size int64
	ETag string
}

// PutObject streams an object into the configured bucket
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (UploadInfo, error) {
	info, err := c.client.PutObject(ctx, c.config.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		c.logger.Error("minio put object failed",
			zap.String("object", objectName),
			zap.Error(err),
		)
		return UploadInfo{}, fmt.Errorf("minio: put object %q: %w", objectName, err)
	}

	return UploadInfo{
		Key:  info.Key,
		Size: info.Size,
		ETag: info.ETag,
	}, nil
}

// GetObject opens an object for reading; the caller must close it
func (c *Client) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.config.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio: get object %q: %w", objectName, err)
	}
	return obj, nil
}

// RemoveObject deletes an object
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	if err := c.client.RemoveObject(ctx, c.config.Bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		c.logger.Error("minio remove object failed",
			zap.String("object", objectName),
			zap.Error(err),
		)
		return fmt.Errorf("minio: remove object %q: %w", objectName, err)
	}
	return nil
}

// PresignedGetObject returns a time-limited download URL for an object
func (c *Client) PresignedGetObject(ctx context.Context, objectName string, expiry time.Duration) (*url.URL, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := c.client.PresignedGetObject(ctx, c.config.Bucket, objectName, expiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("minio: presign get %q: %w", objectName, err)
	}
	return u, nil
}

package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// Storage returns the file storage side of the client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles file storage operations.
type StorageClient struct {
	client *Client
}

// From scopes storage calls to bucket.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{
		client: s.client,
		bucket: bucket,
	}
}

// BucketClient builds URLs for objects in one bucket.
type BucketClient struct {
	client *Client
	bucket string
}

// PublicURL returns the public URL for a file. Absolute URLs are returned
// unchanged so rows may point at external images.
func (b *BucketClient) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, strings.TrimPrefix(path, "/"))
}

// Package objectstore delivers export files through an S3-compatible bucket
// and hands out time-limited download links.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRegion  = "us-east-1"
	DefaultLinkTTL = 15 * time.Minute
)

var ErrNotConfigured = errors.New("object storage not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	LinkTTL   time.Duration
}

// Upload describes a stored object and its presigned download link.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Client struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	now    func() time.Time
}

// New builds a client. It does not contact the server; call EnsureBucket
// before the first upload.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Client{client: mc, bucket: cfg.Bucket, ttl: ttl, now: time.Now}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	logrus.WithField("bucket", c.bucket).Info("objectstore: bucket created")
	return nil
}

// Put stores data under a fresh key in the owner's prefix and returns a
// presigned link to it.
func (c *Client) Put(ctx context.Context, ownerID, filename, contentType string, data []byte) (Upload, error) {
	key := ObjectKey(ownerID, filename)
	info, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
	})
	if err != nil {
		return Upload{}, fmt.Errorf("put object: %w", err)
	}

	link, expires, err := c.Link(ctx, key, filename)
	if err != nil {
		return Upload{}, err
	}
	return Upload{Key: key, URL: link, Size: info.Size, ExpiresAt: expires}, nil
}

// Link presigns a GET for key. The signature is computed locally.
func (c *Client) Link(ctx context.Context, key, filename string) (string, time.Time, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, c.ttl, params)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign object: %w", err)
	}
	return u.String(), c.now().Add(c.ttl), nil
}

// ObjectKey places uploads under exports/<owner>/<uuid>/<file>.
func ObjectKey(ownerID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "export"
	}
	return path.Join("exports", ownerID, uuid.NewString(), name)
}

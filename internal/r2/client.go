// Package r2 stores uploaded source documents in a Cloudflare R2 bucket
// through its S3 compatible API.
package r2

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"learnhub/internal/logger"
)

// Options configures a Client. Endpoint overrides the account endpoint.
type Options struct {
	AccountID       string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
	Endpoint        string
}

// Client holds the necessary configuration for interacting with Cloudflare R2.
type Client struct {
	s3        *s3.Client
	bucket    string
	publicURL *url.URL
	log       *logger.Logger
}

// NewClient creates an R2 client. Callers decide whether R2 is optional;
// see config.Config.R2Enabled.
func NewClient(ctx context.Context, opts Options, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(opts.PublicURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid R2 public base URL %q", opts.PublicURL)
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
		config.WithRegion("auto"),
		// R2 rejects the default trailing checksums on some operations
		config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	log.Info("R2 client initialized", "bucket", opts.Bucket)
	return &Client{s3: client, bucket: opts.Bucket, publicURL: base, log: log}, nil
}

// ObjectKey is where a user's document is stored in the bucket.
func ObjectKey(userID string, documentID uuid.UUID, filename string) string {
	return path.Join("documents", userID, documentID.String(), path.Base(strings.ReplaceAll(filename, "\\", "/")))
}

// URL returns the public URL of key.
func (c *Client) URL(key string) string {
	u := *c.publicURL
	u.Path = path.Join("/", u.Path, key)
	return u.String()
}

// KeyFromURL reverses URL. It returns false for URLs outside the bucket.
func (c *Client) KeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != c.publicURL.Host {
		return "", false
	}
	prefix := strings.TrimSuffix(c.publicURL.Path, "/") + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(u.Path, prefix), true
}

// Upload stores body under key and returns its public URL.
func (c *Client) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to R2 (key: %s): %w", key, err)
	}
	u := c.URL(key)
	c.log.Info("Uploaded file to R2", "url", u)
	return u, nil
}

// Delete removes key from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete R2 object %s: %w", key, err)
	}
	return nil
}

package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config holds object storage configuration.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL prefixes object keys in returned URLs. Empty means
	// path-style endpoint/bucket/key.
	PublicBaseURL string
	KeyPrefix     string
}

// S3Store writes generated images to an S3-compatible bucket.
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
	prefix  string
	now     func() time.Time
}

// NewS3Store creates an S3 store.
func NewS3Store(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("incomplete storage configuration: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
		}
		baseURL = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix == "" {
		prefix = "generations"
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		prefix:  prefix,
		now:     time.Now,
	}, nil
}

// Put uploads data under a fresh key and returns its public URL.
func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := s.objectKey(contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// objectKey returns prefix/YYYY/MM/<uuid>.<ext>.
func (s *S3Store) objectKey(contentType string) string {
	now := s.now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s.%s", s.prefix, now.Year(), int(now.Month()), uuid.NewString(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

var _ ObjectStore = (*S3Store)(nil)

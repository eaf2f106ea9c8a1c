package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Store.
type S3Config struct {
	// Endpoint is the S3 endpoint URL. Empty uses AWS S3.
	Endpoint string
	// Region falls back to the SDK's default chain when empty.
	Region string
	// AccessKeyID and SecretAccessKey fall back to the SDK's default chain
	// when empty.
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// UsePathStyle is needed by most S3-compatible servers, gofakes3 included.
	UsePathStyle bool
}

// S3Store uploads artifacts to a bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store loads the AWS SDK config and creates a store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("artifacts: bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreFromClient(client, cfg.Bucket), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Upload puts body at key and returns an s3:// location.
func (s *S3Store) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: put %q: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

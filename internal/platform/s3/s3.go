// Package s3 is an artifact.ObjectStore backed by Amazon S3.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/phrazzld/genflow/internal/artifact"
	"github.com/phrazzld/genflow/internal/store"
)

// PutObjectAPI is the part of the S3 client the store uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads artifacts to a single bucket.
type Store struct {
	client PutObjectAPI
	bucket string
	region string
}

var _ artifact.ObjectStore = (*Store)(nil)

// Config selects the bucket. Endpoint is only set for S3-compatible
// services such as MinIO, which also need path-style addressing.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// New loads the default AWS credential chain and creates a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Region), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client PutObjectAPI, bucket, region string) *Store {
	return &Store{client: client, bucket: bucket, region: region}
}

// Put implements artifact.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts artifact.PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: opts.Metadata,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", store.NewStoreError("artifact", "put", "s3 upload failed", err)
	}
	return s.URL(key), nil
}

// URL is the virtual-hosted style address of key.
func (s *Store) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hallwayhq/console/pkg/config"
)

var tracer = otel.Tracer("console/storage")

// ObjectStore handles S3 operations for uploaded branding assets
type ObjectStore struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewObjectStore creates a new S3 object store
func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	ctx := context.Background()

	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials, for MinIO or AWS with explicit keys
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &ObjectStore{
		client:        client,
		bucket:        cfg.S3Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// PutObject uploads content and returns its public URL
func (o *ObjectStore) PutObject(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", o.bucket),
			attribute.String("s3.key", key),
			attribute.String("content.type", contentType),
		),
	)
	defer span.End()

	data, err := io.ReadAll(content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read content")
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	_, err = o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload object")
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	return o.PublicURL(key), nil
}

// DeleteObject removes an object. Deleting an absent object is not an error.
func (o *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "S3.DeleteObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", o.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for a stored object
func (o *ObjectStore) PublicURL(key string) string {
	if o.publicBaseURL != "" {
		return o.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", o.bucket, key)
}

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/jmunro/archivist/pkg/blob")

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("blob not found")

// Store is the cold-tier contract consumed by the ingestion pipeline and
// the queue consumer. Implementations must provide read-after-write
// consistency for a given key.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// Config holds S3/R2 connection settings.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// CreateBucket bootstraps the bucket on startup. Only sensible for
	// local development against MinIO; R2 buckets are provisioned out of band.
	CreateBucket bool
}

// S3Store implements Store on any S3-compatible backend.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client from config and verifies the bucket is reachable.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	store := &S3Store{client: client, bucket: cfg.Bucket}

	if cfg.CreateBucket {
		if err := store.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}

	return store, nil
}

// Put writes an object. The write either fully succeeds or the object does
// not exist; S3 never exposes partial writes.
func (s *S3Store) Put(ctx context.Context, key string, body []byte) error {
	ctx, span := tracer.Start(ctx, "Blob.Put",
		trace.WithAttributes(
			attribute.String("blob.bucket", s.bucket),
			attribute.String("blob.key", key),
			attribute.Int("blob.size", len(body)),
		),
	)
	defer span.End()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get reads an object in full. Returns ErrNotFound for missing keys.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Blob.Get",
		trace.WithAttributes(
			attribute.String("blob.bucket", s.bucket),
			attribute.String("blob.key", key),
		),
	)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			span.SetStatus(codes.Ok, "not found")
			return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	span.SetAttributes(attribute.Int("blob.size", len(body)))
	span.SetStatus(codes.Ok, "")
	return body, nil
}

// Exists probes for an object without fetching its body.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}
	return true, nil
}

// List returns every key under prefix, following pagination to the end.
// Any page failure aborts the whole listing; callers get either the
// complete key set or an error, never a partial one.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Blob.List",
		trace.WithAttributes(
			attribute.String("blob.bucket", s.bucket),
			attribute.String("blob.prefix", prefix),
		),
	)
	defer span.End()

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list failed")
			return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	span.SetAttributes(attribute.Int("blob.count", len(keys)))
	span.SetStatus(codes.Ok, "")
	return keys, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies bucket connectivity.
func (s *S3Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("blob store health check failed: %w", err)
	}
	return nil
}

func (s *S3Store) createBucketIfNotExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil && !isBucketExists(err) {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}

func isBucketExists(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BucketAlreadyExists") || strings.Contains(msg, "BucketAlreadyOwnedByYou")
}

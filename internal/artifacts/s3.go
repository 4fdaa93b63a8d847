// Package artifacts archives failure screenshots in an S3-compatible bucket so
// result comments can link to them. Production points at any S3 endpoint
// (AWS, Tigris, MinIO); tests use gofakes3.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/kuitang/storefront-e2e/internal/errs"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errs.New(errs.NotFound, "artifacts: object not found")

// Store uploads one artifact and returns the URL it can be fetched from.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Config holds the bucket settings.
type Config struct {
	// Endpoint is the S3 endpoint URL. Empty uses AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicURL is the base URL objects are served from.
	PublicURL string
	// Prefix is prepended to every key, before the per-run directory.
	Prefix string
	// UsePathStyle is required by gofakes3 and MinIO.
	UsePathStyle bool
}

// S3Store writes objects under <prefix>/<run key>/<name>, where the run key is
// a fresh UUID per process so parallel pipelines never overwrite each other.
type S3Store struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string
	prefix    string
	runKey    string
}

// New creates a store from configuration.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "artifacts: load AWS config", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewFromS3Client(client, cfg.Bucket, cfg.PublicURL, cfg.Prefix), nil
}

// NewFromS3Client wraps an existing S3 client.
func NewFromS3Client(client *s3.Client, bucket, publicURL, prefix string) *S3Store {
	return &S3Store{
		s3Client:  client,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		prefix:    strings.Trim(prefix, "/"),
		runKey:    uuid.NewString(),
	}
}

// Key returns the object key used for name.
func (s *S3Store) Key(name string) string {
	return path.Join(s.prefix, s.runKey, path.Base(name))
}

// RunKey returns the per-process directory under the prefix.
func (s *S3Store) RunKey() string {
	return s.runKey
}

// Put uploads data as a public-read object and returns its public URL.
func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := s.Key(name)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "artifacts: put "+key, err)
	}
	return s.URL(key), nil
}

// Get returns the object stored under key, or ErrObjectNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, errs.Wrap(errs.Unavailable, "artifacts: get "+key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "artifacts: read "+key, err)
	}
	return data, nil
}

// URL returns the public URL for key.
func (s *S3Store) URL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

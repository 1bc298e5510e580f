// Package minio backs the Buckets service with an S3-compatible object store
// such as MinIO or Garage. It provides no functions or gateways.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
	"github.com/rs/zerolog"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// Client is the subset of *minio.Client the store uses.
type Client interface {
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	RemoveBucket(ctx context.Context, bucketName string) error
	EnableVersioning(ctx context.Context, bucketName string) error
	SuspendVersioning(ctx context.Context, bucketName string) error
	SetBucketTagging(ctx context.Context, bucketName string, tags *tags.Tags) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Options configures the connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
	Logger    zerolog.Logger
}

// Store implements cloud.Buckets.
type Store struct {
	Client Client
	region string
	log    zerolog.Logger
}

// New connects to the endpoint with static credentials.
func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint is not configured")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("minio credentials are not configured")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return FromClient(client, opts), nil
}

// FromClient wraps an existing client.
func FromClient(client Client, opts Options) *Store {
	return &Store{Client: client, region: opts.Region, log: opts.Logger}
}

// Provider returns a storage-only provider. Compose it with another backend
// for functions and gateways.
func (s *Store) Provider() cloud.Provider {
	return cloud.Provider{Name: "minio", Buckets: s}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return fmt.Errorf("%w: %w", cloud.ErrBucketAlreadyExists, err)
	case "BucketNotEmpty":
		return fmt.Errorf("%w: %w", cloud.ErrBucketNotEmpty, err)
	case "NoSuchBucket", "NoSuchKey", "NoSuchVersion":
		return fmt.Errorf("%w: %w", cloud.ErrNotFound, err)
	}
	return err
}

func (s *Store) CreateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	if spec.Name == "" {
		return nil, errors.New("bucketName cannot be empty")
	}
	if err := s.Client.MakeBucket(ctx, spec.Name, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", spec.Name, mapError(err))
	}
	s.log.Debug().Str("bucket", spec.Name).Msg("bucket created")

	if spec.Versioned {
		if err := s.Client.EnableVersioning(ctx, spec.Name); err != nil {
			return nil, fmt.Errorf("failed to enable versioning on %s: %w", spec.Name, mapError(err))
		}
	}
	if err := s.setTags(ctx, spec); err != nil {
		return nil, err
	}
	return &cloud.BucketInfo{Name: spec.Name, Arn: "arn:aws:s3:::" + spec.Name, Versioned: spec.Versioned}, nil
}

func (s *Store) UpdateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	var err error
	if spec.Versioned {
		err = s.Client.EnableVersioning(ctx, spec.Name)
	} else {
		err = s.Client.SuspendVersioning(ctx, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to change versioning on %s: %w", spec.Name, mapError(err))
	}
	if err := s.setTags(ctx, spec); err != nil {
		return nil, err
	}
	return &cloud.BucketInfo{Name: spec.Name, Arn: "arn:aws:s3:::" + spec.Name, Versioned: spec.Versioned}, nil
}

func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	if err := s.Client.RemoveBucket(ctx, name); err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", name, mapError(err))
	}
	return nil
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, body []byte) (string, error) {
	info, err := s.Client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to put %s/%s: %w", bucket, key, mapError(err))
	}
	if info.VersionID == "" {
		return "null", nil
	}
	return info.VersionID, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key, versionID string) ([]byte, error) {
	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{VersionID: versionID})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", bucket, key, mapError(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, mapError(err))
	}
	return data, nil
}

func (s *Store) setTags(ctx context.Context, spec cloud.BucketSpec) error {
	if len(spec.Tags) == 0 {
		return nil
	}
	t, err := tags.NewTags(spec.Tags, false)
	if err != nil {
		return fmt.Errorf("invalid tags on %s: %w", spec.Name, err)
	}
	if err := s.Client.SetBucketTagging(ctx, spec.Name, t); err != nil {
		return fmt.Errorf("failed to tag bucket %s: %w", spec.Name, mapError(err))
	}
	return nil
}

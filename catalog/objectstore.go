package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go"
)

var (
	_ = (ObjectStore)(&AWSObjectStore{})
	_ = (ObjectStore)(&MinioObjectStore{})
)

// ObjectStore fetches whole catalog objects from remote storage.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type ObjectStoreOptions struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// MaxBytes caps a single download, 0 means no cap.
	MaxBytes int64
}

func readCapped(r io.Reader, max int64, bucket, key string) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("object s3://%s/%s exceeds download limit of %d bytes", bucket, key, max)
	}
	return data, nil
}

// AWSObjectStore reads from Amazon S3.
type AWSObjectStore struct {
	client   *s3.Client
	maxBytes int64
}

func NewAWSObjectStore(opts ObjectStoreOptions) *AWSObjectStore {
	s3Opts := s3.Options{
		Region: opts.Region,
	}
	if opts.AccessKey != "" {
		creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     opts.AccessKey,
				SecretAccessKey: opts.SecretKey,
				Source:          "opti-sql-sema config",
			}, nil
		})
		s3Opts.Credentials = aws.NewCredentialsCache(creds)
	} else {
		s3Opts.Credentials = aws.AnonymousCredentials{}
	}
	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.Endpoint)
		s3Opts.UsePathStyle = true
	}
	return &AWSObjectStore{client: s3.New(s3Opts), maxBytes: opts.MaxBytes}
}

func (a *AWSObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return readCapped(out.Body, a.maxBytes, bucket, key)
}

// MinioObjectStore reads from any S3 compatible endpoint.
type MinioObjectStore struct {
	client   *minio.Client
	maxBytes int64
}

func NewMinioObjectStore(opts ObjectStoreOptions) (*MinioObjectStore, error) {
	client, err := minio.New(opts.Endpoint, opts.AccessKey, opts.SecretKey, opts.UseSSL)
	if err != nil {
		return nil, err
	}
	return &MinioObjectStore{client: client, maxBytes: opts.MaxBytes}, nil
}

func (m *MinioObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObjectWithContext(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return readCapped(obj, m.maxBytes, bucket, key)
}

// NewObjectStore picks an implementation by provider name ("aws" or "minio").
func NewObjectStore(provider string, opts ObjectStoreOptions) (ObjectStore, error) {
	switch provider {
	case "", "aws":
		return NewAWSObjectStore(opts), nil
	case "minio":
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("minio object store requires an endpoint")
		}
		return NewMinioObjectStore(opts)
	default:
		return nil, fmt.Errorf("unknown object store provider %q", provider)
	}
}

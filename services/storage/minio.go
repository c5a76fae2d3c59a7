// Package storagesvc implements upload.ObjectStore on S3 compatible buckets.
package storagesvc

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/upload"
)

// MinioStore talks to S3 or MinIO.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ upload.ObjectStore = (*MinioStore)(nil)

// NewMinioStore creates the client. Nothing is sent to the server until the first call.
func NewMinioStore(conf core.StorageConfig) (*MinioStore, error) {
	var creds *credentials.Credentials
	if conf.AccessKey != "" {
		creds = credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, "")
	} else {
		// instance role, or AWS_* env vars
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{},
		})
	}
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}
	return &MinioStore{client: client, bucket: conf.Bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (m *MinioStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return errors.Wrap(err, "checking bucket")
	}
	if exists {
		return nil
	}
	return errors.Wrap(m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}), "creating bucket")
}

func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrap(err, "putting object")
}

func (m *MinioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, "presigning get")
	}
	return u.String(), nil
}

func (m *MinioStore) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	var headers http.Header
	if contentType != "" {
		headers = http.Header{"Content-Type": []string{contentType}}
	}
	u, err := m.client.PresignHeader(ctx, http.MethodPut, m.bucket, key, expiry, nil, headers)
	if err != nil {
		return "", errors.Wrap(err, "presigning put")
	}
	return u.String(), nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	return errors.Wrap(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}), "removing object")
}

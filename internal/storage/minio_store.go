package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStore struct {
	client     minioClient
	bucketName string
	publicURL  string
}

// compile-time check: *MinioStore must satisfy port.FileStore
var _ port.FileStore = (*MinioStore)(nil)

// NewMinioStore connects to MinIO and makes sure the bucket exists.
// publicURL is the base address objects are served from, bucket included.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, bucket, publicURL string) (*MinioStore, error) {
	logger.Info(ctx, "initialising minio client...")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return newMinioStore(ctx, client, bucket, publicURL)
}

func newMinioStore(ctx context.Context, client minioClient, bucket, publicURL string) (*MinioStore, error) {
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if !ok {
		logger.Infof(ctx, "bucket %q does not exist, creating it...", bucket)
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, mapMinioErr(err)
		}
	}
	return &MinioStore{client: client, bucketName: bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *MinioStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	logger.Debugf(ctx, "saving file %q into bucket %q...", key, s.bucketName)

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucketName, key, r, size, opts); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (port.FileInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return port.FileInfo{}, mapMinioErr(err)
	}
	return port.FileInfo{
		SizeBytes:   info.Size,
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
	}, nil
}

// Rename copies the object then removes the source, MinIO has no move.
func (s *MinioStore) Rename(ctx context.Context, srcKey, destKey string) error {
	logger.Debugf(ctx, "moving file %q to %q inside bucket %q...", srcKey, destKey, s.bucketName)

	dst := minio.CopyDestOptions{Bucket: s.bucketName, Object: destKey}
	src := minio.CopySrcOptions{Bucket: s.bucketName, Object: srcKey}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return mapMinioErr(err)
	}
	return s.Remove(ctx, srcKey)
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	logger.Debugf(ctx, "removing file %q from bucket %q...", key, s.bucketName)

	err := mapMinioErr(s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}))
	if errors.Is(err, port.ErrObjectNotFound) {
		return nil
	}
	return err
}

func (s *MinioStore) RemovePrefix(ctx context.Context, prefix string) error {
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return mapMinioErr(obj.Err)
		}
		if err := s.Remove(ctx, obj.Key); err != nil {
			return err
		}
	}
	return nil
}

func (s *MinioStore) URL(key string) string {
	return s.publicURL + "/" + key
}

func (s *MinioStore) LocalPath(string) (string, bool) {
	return "", false
}

package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Store implements document.ArchiveStore on a single bucket. Objects are
// laid out as <tenant>/<id>/document and <tenant>/<id>/assessment.json.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

var _ document.ArchiveStore = (*Store)(nil)

// New buat koneksi MinIO dan pastikan bucket ada
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// DocumentKey is the object key of the raw document bytes.
func DocumentKey(tenant string, id document.ID) string {
	return fmt.Sprintf("%s/%s/document", tenant, id)
}

// AssessmentKey is the object key of the canonical frozen record.
func AssessmentKey(tenant string, id document.ID) string {
	return fmt.Sprintf("%s/%s/assessment.json", tenant, id)
}

// PutDocument stores the submitted bytes unchanged.
func (s *Store) PutDocument(ctx context.Context, tenant string, id document.ID, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.put(ctx, DocumentKey(tenant, id), data, contentType)
}

// PutAssessment stores the canonical JSON of the frozen record.
func (s *Store) PutAssessment(ctx context.Context, tenant string, id document.ID, canonical []byte) (string, error) {
	return s.put(ctx, AssessmentKey(tenant, id), canonical, "application/json")
}

// DeleteDocument removes both objects; used when persistence fails after archiving.
func (s *Store) DeleteDocument(ctx context.Context, tenant string, id document.ID) error {
	for _, key := range []string{DocumentKey(tenant, id), AssessmentKey(tenant, id)} {
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	// URL publik (jika bucket public), kalau private harus generate presigned URL
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key), nil
}

// Check reports whether the bucket is reachable.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucketName)
	}
	return nil
}

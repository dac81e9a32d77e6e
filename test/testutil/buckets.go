package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/minio/minio-go/v7"
)

// MinioStore returns a store on a bucket of its own, emptied and removed
// when the test ends.
func MinioStore(t *testing.T) (*storage.MinioStore, *minio.Client, string) {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Fatal("TEST_MINIO_ENDPOINT env-var not set")
	}
	bucket := fmt.Sprintf("assets-%d", time.Now().UnixNano())
	publicURL := "http://" + endpoint + "/" + bucket

	strg, err := storage.NewMinioStore(ctx, endpoint, MinioUser, MinioPassword, false, bucket, publicURL)
	if err != nil {
		t.Fatalf("create minio store: %v", err)
	}

	client, err := NewMinioClient(endpoint)
	if err != nil {
		t.Fatalf("create minio client: %v", err)
	}
	t.Cleanup(func() {
		for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
			if obj.Err != nil {
				continue
			}
			_ = client.RemoveObject(ctx, bucket, obj.Key, minio.RemoveObjectOptions{})
		}
		_ = client.RemoveBucket(ctx, bucket)
	})

	return strg, client, bucket
}

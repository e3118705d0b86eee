package engines

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectStore uploads produced media and documents to S3-compatible storage
// and hands back presigned GET URLs.
type ObjectStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewObjectStore(client *minio.Client, bucket string, expiry time.Duration) *ObjectStore {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &ObjectStore{client: client, bucket: bucket, expiry: expiry}
}

// Upload puts the local file under key and returns a presigned retrieval URL.
func (o *ObjectStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if _, err := o.client.FPutObject(ctx, o.bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	u, err := o.client.PresignedGetObject(ctx, o.bucket, key, o.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

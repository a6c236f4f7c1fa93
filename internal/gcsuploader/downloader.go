package gcsuploader

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// MaxObjectBytes caps how much of an archived workbook DownloadFile reads.
const MaxObjectBytes = 64 << 20

// DownloadFile reads an archived object into memory.
func DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader %s/%s: %w", bucketName, objectName, err)
	}
	defer r.Close()

	if r.Attrs.Size > MaxObjectBytes {
		return nil, fmt.Errorf("object %s/%s is %d bytes, limit is %d", bucketName, objectName, r.Attrs.Size, MaxObjectBytes)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}

	return data, nil
}

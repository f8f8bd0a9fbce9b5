package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	StorageProviderLocal = "local"
	StorageProviderGCS   = "gcs"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

// getGoogleClient initializes a Google Cloud Storage client.
// Prefers ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ArchiveObject stores raw bytes under objectKey using the configured provider.
// Local provider writes under ARCHIVE_DIR (default "uploads"); GCS writes to GCS_BUCKET.
func ArchiveObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	switch GetStorageProvider() {
	case StorageProviderGCS:
		return archiveToGCS(ctx, objectKey, data, contentType)
	case StorageProviderLocal:
		return archiveToLocalDir(objectKey, data)
	default:
		return fmt.Errorf("storage provider %q not supported", GetStorageProvider())
	}
}

func archiveToGCS(ctx context.Context, objectKey string, data []byte, contentType string) error {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectKey).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func archiveToLocalDir(objectKey string, data []byte) error {
	dir := os.Getenv("ARCHIVE_DIR")
	if dir == "" {
		dir = "uploads"
	}
	path := filepath.Join(dir, filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

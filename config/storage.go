package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yoockh/yooproctor/internal/storage"
)

// InitStorage opens the recording store selected by STORAGE_DRIVER (gcs by
// default, or s3).
func InitStorage(ctx context.Context) (storage.Store, error) {
	bucket := envString("RECORDING_BUCKET", "")
	if bucket == "" {
		return nil, errors.New("RECORDING_BUCKET environment variable is not set")
	}

	switch driver := strings.ToLower(envString("STORAGE_DRIVER", "gcs")); driver {
	case "gcs":
		u, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "s3":
		u, err := storage.NewS3Uploader(ctx, bucket, envString("AWS_REGION", ""))
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want gcs or s3)", driver)
	}
}

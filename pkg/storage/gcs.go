package storage

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

// GCSUploader streams objects to Google Cloud Storage.
type GCSUploader struct {
	client *storage.Client
	logger *zap.Logger
}

// NewGCSUploader creates a client from credentialsFile, or from application
// default credentials when it is empty.
func NewGCSUploader(ctx context.Context, credentialsFile string, logger *zap.Logger) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	return &GCSUploader{
		client: client,
		logger: logger.With(zap.String("component", "gcs_uploader")),
	}, nil
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, loc Location, body io.Reader, contentType string) error {
	start := time.Now()
	w := u.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write GCS object").
			WithDetail("location", loc.String())
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize GCS object").
			WithDetail("location", loc.String())
	}
	u.logger.Info("uploaded output",
		zap.String("location", loc.String()),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Close implements Uploader.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

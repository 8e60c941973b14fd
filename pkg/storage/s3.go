package storage

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

const (
	s3PartSize    = 8 * 1024 * 1024
	s3Concurrency = 4
)

// S3Uploader uploads objects with the multipart upload manager.
type S3Uploader struct {
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewS3Uploader loads the default AWS credential chain. An empty region
// defers to the environment.
func NewS3Uploader(ctx context.Context, region string, logger *zap.Logger) (*S3Uploader, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg)
	return &S3Uploader{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = s3PartSize
			u.Concurrency = s3Concurrency
		}),
		logger: logger.With(zap.String("component", "s3_uploader")),
	}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, loc Location, body io.Reader, contentType string) error {
	start := time.Now()
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
			WithDetail("location", loc.String())
	}
	u.logger.Info("uploaded output",
		zap.String("location", out.Location),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Close implements Uploader.
func (u *S3Uploader) Close() error { return nil }

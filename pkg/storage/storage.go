// Package storage uploads finished output files to object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

// Scheme identifies an object store.
type Scheme string

const (
	SchemeS3  Scheme = "s3"
	SchemeGCS Scheme = "gs"
)

// Location is a parsed object URL such as s3://bucket/prefix/out.jsonl.
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// ParseURL parses an s3:// or gs:// URL. A key ending in "/" is a prefix and
// is completed with the upload's file name by Resolve.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid upload url")
	}
	scheme := Scheme(strings.ToLower(u.Scheme))
	if scheme != SchemeS3 && scheme != SchemeGCS {
		return Location{}, errors.Newf(errors.ErrorTypeConfig, "unsupported upload scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return Location{}, errors.Newf(errors.ErrorTypeConfig, "upload url %q has no bucket", raw)
	}
	return Location{Scheme: scheme, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
}

// Resolve returns the location with an empty or prefix key completed by name.
func (l Location) Resolve(name string) Location {
	if l.Key == "" || strings.HasSuffix(l.Key, "/") {
		l.Key += name
	}
	return l
}

// Uploader writes an object to a store.
type Uploader interface {
	Upload(ctx context.Context, loc Location, body io.Reader, contentType string) error
	Close() error
}

// Options configures uploader construction.
type Options struct {
	AWSRegion          string
	GCSCredentialsFile string
	Logger             *zap.Logger
}

// NewUploader returns the uploader for the location's scheme.
func NewUploader(ctx context.Context, loc Location, opts Options) (Uploader, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	switch loc.Scheme {
	case SchemeS3:
		return NewS3Uploader(ctx, opts.AWSRegion, opts.Logger)
	case SchemeGCS:
		return NewGCSUploader(ctx, opts.GCSCredentialsFile, opts.Logger)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported upload scheme %q", loc.Scheme)
	}
}

// UploadFile opens path and uploads it to loc.
func UploadFile(ctx context.Context, up Uploader, loc Location, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open upload source")
	}
	defer f.Close()
	return up.Upload(ctx, loc, f, contentType)
}

// Package json implements a destination writing line-delimited JSON messages:
// one RECORD line per record and one STATE line per checkpoint.
package json

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/compression"
	"github.com/ajitpratap0/nebula-omnivore/pkg/config"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/core"
	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-omnivore/pkg/json"
	"github.com/ajitpratap0/nebula-omnivore/pkg/logger"
	"github.com/ajitpratap0/nebula-omnivore/pkg/models"
	"github.com/ajitpratap0/nebula-omnivore/pkg/storage"
)

const (
	// StdoutPath selects standard output as the destination
	StdoutPath = "-"

	defaultBufferSize   = 64 * 1024
	timeExtractedLayout = "2006-01-02T15:04:05.000000Z"
)

type recordMessage struct {
	Type          string                 `json:"type"`
	Stream        string                 `json:"stream"`
	Record        map[string]interface{} `json:"record"`
	TimeExtracted string                 `json:"time_extracted"`
}

type stateMessage struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Options configures a JSONDestination.
type Options struct {
	// Path is the output file; StdoutPath or empty writes to stdout
	Path        string
	Compression compression.Algorithm
	Level       compression.Level
	// UploadURL uploads the finished file to s3:// or gs:// on Close
	UploadURL string
	Storage   storage.Options
	Logger    *zap.Logger
}

// JSONDestination writes messages to a file or stdout.
type JSONDestination struct {
	mu      sync.Mutex
	file    *os.File
	tmpFile bool
	comp    io.WriteCloser
	writer  *bufio.Writer
	enc     *jsonpool.LineEncoder
	closed  bool

	filePath  string
	uploadLoc *storage.Location
	storage   storage.Options
	logger    *zap.Logger

	recordsWritten int64
	statesWritten  int64

	newUploader func(ctx context.Context, loc storage.Location, opts storage.Options) (storage.Uploader, error)
}

// NewJSONDestination is the registry factory.
func NewJSONDestination(cfg *config.Config) (core.Destination, error) {
	alg, err := compression.Parse(cfg.Output.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}
	return New(Options{
		Path:        cfg.Output.Path,
		Compression: alg,
		Level:       compression.Default,
		UploadURL:   cfg.Output.UploadURL,
		Storage: storage.Options{
			AWSRegion:          cfg.Output.AWSRegion,
			GCSCredentialsFile: cfg.Output.GCSCredentialsFile,
		},
	})
}

// New opens the destination. Writing to stdout with an upload URL spools to a
// temporary file that is removed after upload.
func New(opts Options) (*JSONDestination, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	d := &JSONDestination{
		storage:     opts.Storage,
		logger:      opts.Logger.With(zap.String("component", "json_destination")),
		newUploader: storage.NewUploader,
	}
	if d.storage.Logger == nil {
		d.storage.Logger = opts.Logger
	}

	if opts.UploadURL != "" {
		loc, err := storage.ParseURL(opts.UploadURL)
		if err != nil {
			return nil, err
		}
		d.uploadLoc = &loc
	}

	var out io.Writer
	switch {
	case opts.Path != "" && opts.Path != StdoutPath:
		path := opts.Path
		if ext := opts.Compression.Extension(); ext != "" && !strings.HasSuffix(path, ext) {
			path += ext
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to create directory for %s", path))
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to create %s", path))
		}
		d.file, d.filePath, out = f, path, f
	case d.uploadLoc != nil:
		f, err := os.CreateTemp("", "omnivore-*.jsonl"+opts.Compression.Extension())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create spool file")
		}
		d.file, d.filePath, d.tmpFile, out = f, f.Name(), true, f
	default:
		out = os.Stdout
	}

	if err := d.open(out, opts.Compression, opts.Level); err != nil {
		if d.file != nil {
			_ = d.file.Close()
		}
		return nil, err
	}
	return d, nil
}

// NewWriter returns a destination writing to w. Close flushes but does not
// close w.
func NewWriter(w io.Writer, alg compression.Algorithm, log *zap.Logger) (*JSONDestination, error) {
	if log == nil {
		log = logger.Get()
	}
	d := &JSONDestination{logger: log.With(zap.String("component", "json_destination"))}
	if err := d.open(w, alg, compression.Default); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *JSONDestination) open(out io.Writer, alg compression.Algorithm, level compression.Level) error {
	d.writer = bufio.NewWriterSize(out, defaultBufferSize)
	comp, err := compression.NewWriter(d.writer, alg, level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	d.comp = comp
	d.enc = jsonpool.NewLineEncoder(comp)
	return nil
}

// WriteRecord implements core.Destination.
func (d *JSONDestination) WriteRecord(ctx context.Context, record *models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "destination is closed")
	}

	msg := recordMessage{
		Type:          "RECORD",
		Stream:        record.Stream,
		Record:        record.Data,
		TimeExtracted: record.ExtractedAt.UTC().Format(timeExtractedLayout),
	}
	if err := d.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record")
	}
	d.recordsWritten++
	return nil
}

// WriteState implements core.Destination.
func (d *JSONDestination) WriteState(ctx context.Context, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New(errors.ErrorTypeInternal, "destination is closed")
	}

	if err := d.enc.Encode(stateMessage{Type: "STATE", Value: value}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state")
	}
	d.statesWritten++
	// a checkpoint is only useful once it is visible downstream
	if d.file == nil {
		return d.flushLocked()
	}
	return nil
}

func (d *JSONDestination) flushLocked() error {
	if f, ok := d.comp.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressor")
		}
	}
	if err := d.writer.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	return nil
}

// Stats returns the number of records and state messages written.
func (d *JSONDestination) Stats() (records, states int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordsWritten, d.statesWritten
}

// Path returns the local output file, empty when writing to a stream.
func (d *JSONDestination) Path() string {
	return d.filePath
}

// Close flushes all output, closes the file and uploads it when configured.
func (d *JSONDestination) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.tmpFile {
		defer os.Remove(d.filePath)
	}

	_ = d.enc.Close()
	var closeErr error
	if err := d.comp.Close(); err != nil {
		closeErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed stream")
	} else if err := d.writer.Flush(); err != nil {
		closeErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && closeErr == nil {
			closeErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file")
		}
	}
	if closeErr != nil {
		return closeErr
	}

	d.logger.Info("output closed",
		zap.String("path", d.filePath),
		zap.Int64("records", d.recordsWritten),
		zap.Int64("states", d.statesWritten))

	if d.file == nil || d.uploadLoc == nil {
		return nil
	}
	return d.upload(ctx)
}

func (d *JSONDestination) upload(ctx context.Context) error {
	loc := d.uploadLoc.Resolve(filepath.Base(d.filePath))
	up, err := d.newUploader(ctx, loc, d.storage)
	if err != nil {
		return err
	}
	defer up.Close()

	contentType := "application/x-ndjson"
	if filepath.Ext(d.filePath) != ".jsonl" {
		contentType = "application/octet-stream"
	}
	return storage.UploadFile(ctx, up, loc, d.filePath, contentType)
}

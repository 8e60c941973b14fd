package core

import (
	"context"

	"github.com/ajitpratap0/nebula-omnivore/pkg/models"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Source extracts records and writes them to a sink.
type Source interface {
	// Name returns the connector name
	Name() string
	// Discover returns the streams the source can extract
	Discover(ctx context.Context) (*stream.Catalog, error)
	// Sync extracts the selected streams into sink
	Sync(ctx context.Context, sink Destination) error
	// Close releases resources
	Close(ctx context.Context) error
}

// Destination receives records and state checkpoints in order.
type Destination interface {
	// WriteRecord writes one record
	WriteRecord(ctx context.Context, record *models.Record) error
	// WriteState writes a state checkpoint covering every record written before it
	WriteState(ctx context.Context, value interface{}) error
	// Close flushes and finalizes output
	Close(ctx context.Context) error
}

// ConnectorMetadata describes a registered connector
type ConnectorMetadata struct {
	Name        string        `json:"name" yaml:"name"`
	Type        ConnectorType `json:"type" yaml:"type"`
	Description string        `json:"description" yaml:"description"`
}

package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/nebula-omnivore/pkg/models"
)

// MemorySink keeps everything written to it.
type MemorySink struct {
	mu      sync.Mutex
	Records []*models.Record
	States  []interface{}
	Closed  bool
}

// WriteRecord implements core.Destination.
func (m *MemorySink) WriteRecord(_ context.Context, r *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, r)
	return nil
}

// WriteState implements core.Destination.
func (m *MemorySink) WriteState(_ context.Context, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.States = append(m.States, v)
	return nil
}

// Close implements core.Destination.
func (m *MemorySink) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IDs returns the id field of the records of stream, in write order.
func (m *MemorySink) IDs(stream string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.Records {
		if r.Stream == stream {
			out = append(out, fmt.Sprint(r.Data["id"]))
		}
	}
	return out
}

// Stream returns the records of stream, in write order.
func (m *MemorySink) Stream(stream string) []*models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Record
	for _, r := range m.Records {
		if r.Stream == stream {
			out = append(out, r)
		}
	}
	return out
}

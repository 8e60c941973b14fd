// Package models defines the records that flow from a source to a sink.
package models

import "time"

// Record is one normalized record: a flat map of scalar fields.
type Record struct {
	// Stream names the stream the record belongs to
	Stream string
	// Data holds the flattened fields
	Data map[string]interface{}
	// Context is the ancestor context the record was read under
	Context map[string]string
	// ExtractedAt is when the page holding the record was received
	ExtractedAt time.Time
}

// NewRecord creates a record extracted now.
func NewRecord(stream string, data map[string]interface{}) *Record {
	return &Record{
		Stream:      stream,
		Data:        data,
		ExtractedAt: time.Now().UTC(),
	}
}

// Get returns a field value.
func (r *Record) Get(field string) (interface{}, bool) {
	v, ok := r.Data[field]
	return v, ok
}

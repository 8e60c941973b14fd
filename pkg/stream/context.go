package stream

import (
	"sort"
	"strings"
)

// Context carries ancestor identifiers into a child stream invocation. The
// zero value is an empty context. A Context is never modified after it is
// created; With returns a new one.
type Context struct {
	values map[string]string
}

// NewContext builds a context from a map. The map is copied.
func NewContext(values map[string]string) Context {
	c := Context{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// With returns a copy of c with key set to value.
func (c Context) With(key, value string) Context {
	next := Context{values: make(map[string]string, len(c.values)+1)}
	for k, v := range c.values {
		next.values[k] = v
	}
	next.values[key] = value
	return next
}

// Get returns the value stored under key.
func (c Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of variables in c.
func (c Context) Len() int {
	return len(c.values)
}

// Map returns a copy of the values.
func (c Context) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Key returns a canonical partition key such as "location_id=L1,ticket_id=9".
// The empty context has the empty key.
func (c Context) Key() string {
	if len(c.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.values[k])
	}
	return b.String()
}

func (c Context) String() string {
	return "{" + c.Key() + "}"
}

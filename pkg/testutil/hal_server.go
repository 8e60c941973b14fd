package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// BaseURLPlaceholder is replaced with the server URL in canned bodies.
const BaseURLPlaceholder = "{{base}}"

// HALServer serves canned HAL+JSON responses by path and records every
// request. Unknown paths answer 404 with an empty _embedded object.
type HALServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	handlers map[string]http.HandlerFunc
}

// NewHALServer starts a server that is closed when the test ends.
func NewHALServer(t *testing.T) *HALServer {
	t.Helper()
	s := &HALServer{handlers: make(map[string]http.HandlerFunc)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *HALServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(context.Background()))
	h, ok := s.handlers[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"_embedded": {}}`))
		return
	}
	h(w, r)
}

// Handle registers h for path.
func (s *HALServer) Handle(path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
}

// JSON serves body for path with status 200.
func (s *HALServer) JSON(path, body string) {
	s.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = w.Write([]byte(s.Expand(body)))
	})
}

// Collection serves a single page embedding records under resource.
func (s *HALServer) Collection(path, resource string, records ...string) {
	s.JSON(path, fmt.Sprintf(`{"_embedded": {%q: [%s]}, "_links": {"self": {"href": "%s%s"}}}`,
		resource, strings.Join(records, ","), BaseURLPlaceholder, path))
}

// Expand replaces BaseURLPlaceholder in body with the server URL.
func (s *HALServer) Expand(body string) string {
	return strings.ReplaceAll(body, BaseURLPlaceholder, s.URL)
}

// Requests returns the requests received for path, in order.
func (s *HALServer) Requests(path string) []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*http.Request
	for _, r := range s.requests {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests received on any path.
func (s *HALServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

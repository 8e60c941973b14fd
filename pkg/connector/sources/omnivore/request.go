package omnivore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/clients"
	"github.com/ajitpratap0/nebula-omnivore/pkg/logger"
	"github.com/ajitpratap0/nebula-omnivore/pkg/observability"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// buildQuery returns the query for one page: the parameters of the next link
// followed by the incremental filter, which replaces any where in the link.
func buildQuery(def stream.Definition, next *url.URL, start int64) url.Values {
	query := url.Values{}
	if next != nil {
		query = next.Query()
	}
	if def.Incremental() && start != 0 {
		query.Set("where", fmt.Sprintf("gte(%s,%d)", def.ReplicationKey, start))
	}
	return query
}

// fetch performs one GET with retries. Each attempt gets its own span and
// request metric.
func (s *Source) fetch(ctx context.Context, def stream.Definition, path string, query url.Values) (*clients.Response, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("path", path))

	policy := s.retry.Clone()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.metrics.HTTPRetries.WithLabelValues(def.Name).Inc()
		log.Warn("retrying request",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
	}

	var resp *clients.Response
	err := policy.ExecuteWithCondition(ctx, func() error {
		actx, span := observability.StartSpan(ctx, "http.get",
			attribute.String("stream", def.Name),
			attribute.String("http.path", path))
		start := time.Now()

		r, err := s.client.Get(actx, path, query)
		code := 0
		if r != nil {
			code = r.StatusCode
			span.SetAttributes(attribute.Int("http.status_code", code))
		}
		s.metrics.ObserveRequest(def.Name, code, time.Since(start))
		observability.EndSpan(span, err)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, clients.IsRetryable)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		log.Warn("unexpected response status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.URL.String()))
	}
	return resp, nil
}

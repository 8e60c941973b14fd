// Package omnivore extracts records from the Omnivore point-of-sale API.
//
// Streams form a tree rooted at locations. Each stream invocation pages
// through one collection following HAL next links; every record that survives
// post-processing is emitted and then used as context for the child streams,
// depth first.
package omnivore

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/clients"
	"github.com/ajitpratap0/nebula-omnivore/pkg/config"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/base"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/core"
	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/logger"
	"github.com/ajitpratap0/nebula-omnivore/pkg/metrics"
	"github.com/ajitpratap0/nebula-omnivore/pkg/state"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// Name is the registry name of the source.
const Name = "omnivore"

// Source is the Omnivore source connector.
type Source struct {
	config    *config.Config
	client    *clients.HTTPClient
	retry     *base.RetryPolicy
	catalog   *stream.Catalog
	selection *stream.Selection
	state     *state.State
	metrics   *metrics.Metrics
	logger    *zap.Logger

	progressInterval time.Duration

	// filters maps a definition's FilterKey to the ids configured for it
	filters map[string][]string
}

// Option customizes a Source.
type Option func(*Source)

// WithCatalog replaces the built-in stream catalog.
func WithCatalog(c *stream.Catalog) Option {
	return func(s *Source) { s.catalog = c }
}

// WithState seeds bookmarks from a previous sync.
func WithState(st *state.State) Option {
	return func(s *Source) { s.state = st }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) { s.logger = l.With(zap.String("connector", Name)) }
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// WithProgressInterval sets how often a running sync logs its progress. A
// non-positive interval only logs the final summary.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Source) { s.progressInterval = d }
}

// NewSource is the registry factory.
func NewSource(cfg *config.Config) (core.Source, error) {
	return New(cfg)
}

// New creates a source. cfg is expected to be validated; the start date is
// only normalized when an incremental stream needs it.
func New(cfg *config.Config, opts ...Option) (*Source, error) {
	s := &Source{
		config:           cfg,
		progressInterval: base.DefaultReportInterval,
		filters: map[string][]string{
			"locations": cfg.LocationIDs(),
		},
	}
	if err := s.Apply(opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply applies options to a source, typically one created through the
// registry, and rebuilds the parts that depend on them. It must not be
// called while a sync is running.
func (s *Source) Apply(opts ...Option) error {
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		WithLogger(logger.Get())(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Default()
	}
	if s.state == nil {
		s.state = state.New()
	}
	if s.catalog == nil {
		c, err := NewCatalog()
		if err != nil {
			return err
		}
		s.catalog = c
	}

	cfg := s.config
	sel, err := s.catalog.Select(cfg.Streams...)
	if err != nil {
		return err
	}
	s.selection = sel

	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.BaseURL = cfg.BaseURL
	httpCfg.APIKey = cfg.APIKey
	httpCfg.UserAgent = cfg.UserAgent
	httpCfg.RequestTimeout = cfg.Timeouts.Request
	httpCfg.DialTimeout = cfg.Timeouts.Dial
	httpCfg.TLSHandshakeTimeout = cfg.Timeouts.TLSHandshake
	httpCfg.IdleConnTimeout = cfg.Timeouts.Idle
	httpCfg.KeepAlive = cfg.Timeouts.KeepAlive
	httpCfg.RateLimit = cfg.Reliability.RateLimitPerSec
	httpCfg.RateBurst = 1
	client, err := clients.NewHTTPClient(httpCfg, s.logger)
	if err != nil {
		return err
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = client

	s.retry = base.NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay).
		WithMultiplier(cfg.Reliability.RetryMultiplier).
		WithDelay(cfg.Reliability.RetryDelay, cfg.Reliability.MaxRetryDelay)
	return nil
}

// Name implements core.Source.
func (s *Source) Name() string {
	return Name
}

// Discover implements core.Source.
func (s *Source) Discover(ctx context.Context) (*stream.Catalog, error) {
	return s.catalog, nil
}

// State returns the bookmarks, advanced by completed stream invocations.
func (s *Source) State() *state.State {
	return s.state
}

// Close implements core.Source.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Close()
}

// abortError stops the whole sync instead of a single invocation.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// syncRun carries what one Sync call accumulates.
type syncRun struct {
	sink     core.Destination
	progress *base.ProgressReporter
	failures []error
}

// Sync implements core.Source. Failed stream invocations are logged and
// collected while the rest of the sync proceeds; the joined failures are
// returned at the end. With fail_fast the first failure ends the sync.
func (s *Source) Sync(ctx context.Context, sink core.Destination) error {
	log := logger.FromContext(ctx, s.logger)
	run := &syncRun{sink: sink, progress: base.NewProgressReporter(log, s.progressInterval)}
	log.Info("sync started", zap.Int("selected_streams", s.selection.Len()))
	run.progress.Start()

	for _, root := range s.catalog.Roots() {
		if !s.selection.Traverses(root.Name) {
			continue
		}
		if err := s.syncRoot(ctx, run, root); err != nil {
			var abort *abortError
			if stderrors.As(err, &abort) {
				err = abort.err
			}
			snap := run.progress.Stop()
			log.Error("sync aborted", zap.Int64("records", snap.Records), zap.Error(err))
			return stderrors.Join(append(run.failures, err)...)
		}
	}

	snap := run.progress.Stop()
	stats := s.client.GetStats()
	fields := []zap.Field{
		zap.Duration("duration", snap.Elapsed),
		zap.Int64("records", snap.Records),
		zap.Float64("throughput", snap.Throughput),
		zap.Int64("http_requests", stats.TotalRequests),
		zap.Int64("http_failures", stats.FailedRequests),
		zap.Int("failed_invocations", len(run.failures)),
	}
	if stats.RateLimiter != nil {
		fields = append(fields, zap.Duration("rate_limit_wait", stats.RateLimiter.Waited))
	}
	log.Info("sync finished", fields...)
	return stderrors.Join(run.failures...)
}

// syncRoot runs a root stream, once per configured filter id when the
// definition supports filtered runs.
func (s *Source) syncRoot(ctx context.Context, run *syncRun, def stream.Definition) error {
	ids := s.filters[def.FilterKey]
	if def.FilterKey == "" || def.DetailPathTemplate == "" || len(ids) == 0 {
		return s.invoke(ctx, run, def, stream.Context{}, false)
	}

	for _, id := range ids {
		sctx := stream.Context{}.With(def.ContextKey, id)
		if err := s.invoke(ctx, run, def, sctx, true); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs one stream invocation and applies the failure policy. A
// non-nil result stops the sync.
func (s *Source) invoke(ctx context.Context, run *syncRun, def stream.Definition, sctx stream.Context, detail bool) error {
	if err := ctx.Err(); err != nil {
		return &abortError{err: err}
	}
	ctx = logger.ContextWithStream(ctx, def.Name)

	start := time.Now()
	err := s.syncStream(ctx, run, def, sctx, detail)
	s.metrics.StreamDurations.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	var abort *abortError
	if stderrors.As(err, &abort) {
		return err
	}
	if ctx.Err() != nil {
		return &abortError{err: ctx.Err()}
	}

	failure := errors.Wrap(err, errors.TypeOf(err), "stream "+def.Name+" failed").
		WithDetail("stream", def.Name).
		WithDetail("context", sctx.String())
	s.metrics.StreamFailures.WithLabelValues(def.Name).Inc()
	logger.FromContext(ctx, s.logger).Error("stream invocation failed",
		zap.String("context", sctx.String()),
		zap.Error(err))
	run.failures = append(run.failures, failure)

	if s.config.Reliability.FailFast {
		return &abortError{err: failure}
	}
	return nil
}

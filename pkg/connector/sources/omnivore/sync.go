package omnivore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/cursor"
	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/hal"
	"github.com/ajitpratap0/nebula-omnivore/pkg/logger"
	"github.com/ajitpratap0/nebula-omnivore/pkg/models"
	"github.com/ajitpratap0/nebula-omnivore/pkg/observability"
	"github.com/ajitpratap0/nebula-omnivore/pkg/pagination"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// startCursor returns the bookmark for the partition, falling back to the
// configured start date.
func (s *Source) startCursor(def stream.Definition, sctx stream.Context) (int64, error) {
	if !def.Incremental() {
		return 0, nil
	}
	if v, ok := s.state.Get(def.Name, sctx); ok {
		return v, nil
	}
	if s.config.StartDate == "" {
		return 0, nil
	}
	v, err := cursor.Normalize(s.config.StartDate)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInvalidCursor, "invalid start_date")
	}
	return v, nil
}

// syncStream runs one invocation of def under sctx: every page up to the
// pagination cap, each surviving record emitted and descended into.
func (s *Source) syncStream(ctx context.Context, run *syncRun, def stream.Definition, sctx stream.Context, detail bool) (err error) {
	ctx, span := observability.StartSpan(ctx, "stream.sync",
		attribute.String("stream", def.Name),
		attribute.String("stream.context", sctx.Key()),
		attribute.Bool("stream.detail", detail))
	defer func() { observability.EndSpan(span, err) }()

	log := logger.FromContext(ctx, s.logger).With(zap.String("context", sctx.String()))

	path, err := def.Path(sctx)
	if detail {
		path, err = def.DetailPath(sctx)
	}
	if err != nil {
		return err
	}

	start, err := s.startCursor(def, sctx)
	if err != nil {
		return err
	}

	emits := s.selection.Emits(def.Name)
	children := s.traversedChildren(def.Name)
	paginator := pagination.NewHATEOASPaginator(s.config.MaxPagination)

	var (
		next    *url.URL
		maxSeen int64
		records int
	)
	for {
		resp, err := s.fetch(ctx, def, path, buildQuery(def, next, start))
		if err != nil {
			return err
		}
		s.metrics.PagesFetched.WithLabelValues(def.Name).Inc()
		extractedAt := time.Now().UTC()

		rows, err := hal.ExtractRecords(resp.Body, def.Name)
		if err != nil {
			log.Error("discarding malformed response", zap.String("url", resp.URL.String()), zap.Error(err))
			break
		}

		for _, row := range rows {
			// the child context uses the id as received, before flattening
			id := row["id"]
			data, ok := s.postProcess(def, sctx, row)
			if !ok {
				continue
			}
			if def.Incremental() {
				maxSeen = s.trackCursor(log, def, data, maxSeen)
			}

			if emits {
				record := &models.Record{
					Stream:      def.Name,
					Data:        data,
					Context:     sctx.Map(),
					ExtractedAt: extractedAt,
				}
				if err := run.sink.WriteRecord(ctx, record); err != nil {
					return &abortError{err: errors.Wrap(err, errors.ErrorTypeFile, "sink rejected record")}
				}
				s.metrics.RecordsEmitted.WithLabelValues(def.Name).Inc()
				run.progress.Add(def.Name, 1)
				records++
			}

			if len(children) == 0 {
				continue
			}
			childCtx := sctx
			if def.ContextKey != "" && id != nil {
				childCtx = sctx.With(def.ContextKey, fmt.Sprint(id))
			}
			for _, child := range children {
				if err := s.invoke(ctx, run, child, childCtx, false); err != nil {
					return err
				}
			}
		}

		u, more := paginator.Next(resp.Body)
		if !more {
			break
		}
		next = u
	}

	if def.Incremental() && maxSeen > 0 {
		s.state.Advance(def.Name, sctx, maxSeen)
	}
	if err := run.sink.WriteState(ctx, s.state.Snapshot()); err != nil {
		return &abortError{err: errors.Wrap(err, errors.ErrorTypeFile, "sink rejected state")}
	}
	log.Debug("stream invocation complete",
		zap.Int("records", records),
		zap.Int("pages", paginator.PageCount()))
	return nil
}

func (s *Source) traversedChildren(name string) []stream.Definition {
	var out []stream.Definition
	for _, c := range s.catalog.Children(name) {
		if s.selection.Traverses(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Source) trackCursor(log *zap.Logger, def stream.Definition, data map[string]interface{}, maxSeen int64) int64 {
	v, err := cursor.Normalize(data[def.ReplicationKey])
	if err != nil {
		log.Warn("replication key value is not a cursor",
			zap.Any("value", data[def.ReplicationKey]),
			zap.Error(err))
		return maxSeen
	}
	if v > maxSeen {
		return v
	}
	return maxSeen
}

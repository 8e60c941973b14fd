package omnivore

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/hal"
	"github.com/ajitpratap0/nebula-omnivore/pkg/metrics"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// postProcess validates keys, resolves relation ids and flattens row. It
// returns false when the record has to be dropped.
func (s *Source) postProcess(def stream.Definition, sctx stream.Context, row map[string]interface{}) (map[string]interface{}, bool) {
	for _, pk := range def.PrimaryKeys {
		if !s.ensureKey(def, sctx, row, pk, metrics.ReasonMissingPrimaryKey) {
			return nil, false
		}
	}
	if def.Incremental() && !s.ensureKey(def, sctx, row, def.ReplicationKey, metrics.ReasonMissingReplicationKey) {
		return nil, false
	}

	hal.ResolveRelations(row)
	return hal.Flatten(row), true
}

// ensureKey fills a missing or null key from the context.
func (s *Source) ensureKey(def stream.Definition, sctx stream.Context, row map[string]interface{}, key, reason string) bool {
	if v, ok := row[key]; ok && v != nil {
		return true
	}
	if v, ok := sctx.Get(key); ok {
		row[key] = v
		return true
	}

	err := errors.Newf(errors.ErrorTypeMissingKey, "key %q is missing in both record and context", key)
	s.metrics.RecordsSkipped.WithLabelValues(def.Name, reason).Inc()
	s.logger.Warn("skipping record",
		zap.String("stream", def.Name),
		zap.String("context", sctx.String()),
		zap.Any("id", row["id"]),
		zap.Error(err))
	return false
}

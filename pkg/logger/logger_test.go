package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRunID(context.Background(), "run-1")
	ctx = ContextWithStream(ctx, "tickets")

	FromContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.NotContains(t, fields, "connector")
	assert.Equal(t, "tickets", fields["stream"])

	FromContext(ContextWithStream(ctx, "ticket_items"), base).Info("child")
	child := logs.All()[1].ContextMap()
	assert.Equal(t, "ticket_items", child["stream"])
}

func TestGetIsStable(t *testing.T) {
	assert.Same(t, Get(), Get())
}

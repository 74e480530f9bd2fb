package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	shutdown, err := Init(context.Background(), false, dir)
	require.NoError(t, err)
	shutdown()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInitExportsSpansAndMetrics(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	shutdown, err := Init(ctx, true, dir)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "capture_cycle")
	span.End()
	counter, err := otel.Meter("test").Int64Counter("cycles")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	shutdown()

	traces, err := os.ReadFile(filepath.Join(dir, TraceFileName))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "capture_cycle")

	metrics, err := os.ReadFile(filepath.Join(dir, MetricsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "cycles")
}

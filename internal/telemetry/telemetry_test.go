package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/study-core/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// The no-op providers still hand out usable instruments.
	c, err := Meter("studyd/test").Int64Counter("test.count")
	require.NoError(t, err)
	c.Add(context.Background(), 1)

	_, span := Tracer("studyd/test").Start(context.Background(), "noop")
	span.End()
}

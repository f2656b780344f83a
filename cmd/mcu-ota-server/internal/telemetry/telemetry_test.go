package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDisabled(t *testing.T) {
	tracer, shutdown, err := Initialize(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

func TestInitializeEnabled(t *testing.T) {
	tracer, shutdown, err := Initialize(context.Background(), Config{
		ServiceVersion: "test",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		SampleRatio:    1,
	})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "test")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// nothing listens on the endpoint, only the shutdown itself is checked
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

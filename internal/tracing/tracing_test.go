package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartRequestSpan_NoopTracerDoesNotPanic(t *testing.T) {
	ctx, span := StartRequestSpan(context.Background(), "GET /v1/models", "req-123")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	defer span.End()

	SetModel(span, "anthropic.claude-3")
	SetStatus(span, 200, "")
	SetStatus(span, 400, "invalid_request_error")
}

func TestSetModel_SkipsEmptyModelID(t *testing.T) {
	_, span := StartRequestSpan(context.Background(), "GET /v1/models", "req-456")
	defer span.End()
	SetModel(span, "")
}

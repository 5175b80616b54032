package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/exactauth/internal/observability/logger"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).With(logger.RequestID("req-1")))

	Log(ctx, LoginSucceeded, logger.UserID("u-1"))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "audit", e.LoggerName)
	assert.Equal(t, LoginSucceeded, e.Message)
	fields := e.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, LoginSucceeded, fields["event"])
}

// Package audit records security events on a dedicated "audit" logger.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/exactauth/internal/observability/logger"
)

// Event names.
const (
	LoginSucceeded = "login.succeeded"
	LoginFailed    = "login.failed"
	SessionRefresh = "session.refreshed"
	SessionLogout  = "session.logout"
)

// Log writes event with fields. The request id carried by ctx is kept.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).Named("audit").Info(event, append(fields, zap.String("event", event))...)
}

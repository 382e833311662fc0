// Package audit writes security audit events to the structured log.
package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"walletauth.org/internal/auth"
	"walletauth.org/internal/obs"
)

// WithRequestID attaches the request identifier to the context for audit
// logging and for the audit trail kept by the auth service.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return auth.ContextWithRequestID(ctx, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return auth.RequestIDFromContext(ctx)
}

// LogEvent writes an audit entry enriched with the request id and the
// authenticated subject found in ctx. Field keys are emitted in sorted order.
func LogEvent(ctx context.Context, event string, fields map[string]string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{zap.String("type", "audit"), zap.String("event", event)}
	if rid := RequestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if ctx != nil {
		if subject, ok := auth.SubjectFromContext(ctx); ok {
			zf = append(zf, zap.String("subject", subject))
		}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zf = append(zf, zap.String(k, fields[k]))
	}
	obs.Logger().Info("audit", zf...)
	return nil
}

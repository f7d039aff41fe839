// Package audit writes structured audit entries for security-relevant
// operations: logins, token issuance and revocation, permission changes.
package audit

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/overture-stack/ego-sub000/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log emits one audit entry. Field maps are shallow-copied so callers can
// reuse them.
func Log(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := obs.Logger().WithFields(logrus.Fields{
		"type":  "audit",
		"event": event,
	})
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Info("audit")
}

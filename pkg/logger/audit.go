package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is a security-relevant lock or session transition
type AuditEvent struct {
	EventType     string
	SessionID     string
	UserID        string
	Reason        string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit records through the application logger
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogLockEvent records PIN setup, verification, lock and unlock outcomes.
func (al *AuditLogger) LogLockEvent(event AuditEvent) {
	al.log("lock", event)
}

// LogSessionEvent records session start, warning, expiry and termination.
func (al *AuditLogger) LogSessionEvent(event AuditEvent) {
	al.log("session", event)
}

// LogVerification records a verification-gate decision for a sensitive action.
func (al *AuditLogger) LogVerification(action string, success bool, failureReason string) {
	al.log("verification", AuditEvent{
		EventType:     "verification_requested",
		Success:       success,
		FailureReason: failureReason,
		Metadata:      map[string]string{"action": action},
	})
}

func (al *AuditLogger) log(auditType string, event AuditEvent) {
	if al == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", MaskID(event.SessionID)))
	}
	if event.UserID != "" {
		attrs = append(attrs, RedactedAttr("user_id", event.UserID, al.env))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

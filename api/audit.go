package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditSetupInitiated    AuditEvent = "mfa_setup_initiated"
	AuditSetupVerifyFailed AuditEvent = "mfa_setup_verify_failed"
	AuditEnabled           AuditEvent = "mfa_enabled"
	AuditLoginVerified     AuditEvent = "mfa_login_verified"
	AuditLoginFailed       AuditEvent = "mfa_login_failed"
	AuditDisabled          AuditEvent = "mfa_disabled"
	AuditDeviceTrusted     AuditEvent = "device_trusted"
	AuditDeviceRevoked     AuditEvent = "device_revoked"
	AuditCodeSent          AuditEvent = "code_sent"
	AuditLogout            AuditEvent = "logout"
	AuditRateLimited       AuditEvent = "rate_limited"
	AuditIntegrityFault    AuditEvent = "integrity_fault"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Entries never carry codes, secrets, or full device identifiers — device
// IDs appear only as their short prefix.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("audit_id", uuid.NewString()),
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

// logUser is a convenience for events tied to a user.
func (al *auditLogger) logUser(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed attempt with its reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, userID, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

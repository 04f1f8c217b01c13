package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/telescope-scheduler/internal/logging"
	"github.com/example/telescope-scheduler/internal/persistence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, persistence.ErrDuplicate):
		return "already_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrSessionRevoked):
		return "session_revoked"
	case errors.Is(err, ErrInvalidResult):
		return "invalid_result"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// logOutcome writes the single line every wrapper call emits.
func logOutcome[T any](ctx context.Context, logger *slog.Logger, report *AccessReport, result *Result[T], err error) {
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "command failed", "error", err, "error_kind", ErrorKind(err))
	case report != nil:
		logger.WarnContext(ctx, "access denied", "reason", report.Reason, "missing_roles", report.MissingRoles, "invalid_resource", report.InvalidResource)
	case result != nil && !result.Succeeded():
		tags := result.Errors().Tags()
		kinds := make([]string, len(tags))
		for i, tag := range tags {
			kinds[i] = tag.Kind().String()
		}
		logger.InfoContext(ctx, "command rejected", "tags", tags, "kinds", kinds)
	default:
		logger.InfoContext(ctx, "command succeeded")
	}
}

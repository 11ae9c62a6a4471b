package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithIdentity returns a logger with lead identity fields attached.
// Use this for all logging on the scoring and automation paths.
func WithIdentity(identityID, role string) *slog.Logger {
	return slog.With(
		"identity_id", identityID,
		"role", role,
	)
}

// WithJob returns a logger scoped to a specific automation job.
func WithJob(logger *slog.Logger, jobID, kind string) *slog.Logger {
	return logger.With(
		"job_id", jobID,
		"job_kind", kind,
	)
}

// WithConnection returns a logger scoped to one WebSocket connection.
func WithConnection(connID, identityID string) *slog.Logger {
	return slog.With(
		"conn_id", connID,
		"identity_id", identityID,
	)
}

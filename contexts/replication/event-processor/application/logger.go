package application

import "log/slog"

const moduleName = "replication/event-processor"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

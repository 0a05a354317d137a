package application

import "log/slog"

const moduleName = "replication/entity-sync"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

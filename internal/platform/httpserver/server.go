package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	entitysync "schemabridge/contexts/replication/entity-sync"
	syncerrors "schemabridge/contexts/replication/entity-sync/domain/errors"
	synchttp "schemabridge/contexts/replication/entity-sync/transport/http"
	processorapp "schemabridge/contexts/replication/event-processor/application"
	_ "schemabridge/internal/platform/httpserver/docs"
)

// Options selects the routes a process exposes. The worker serves status and
// metrics; the operator API serves the lookups.
type Options struct {
	Sync    *entitysync.Module
	State   *processorapp.RunState
	Metrics http.Handler
	// Ready backs /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	options Options
}

func New(options Options, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		options: options,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http server stopped",
			"event", "http_server_stopped",
			"module", "internal/platform/httpserver",
			"layer", "platform",
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.options.Metrics != nil {
		s.mux.Handle("GET /metrics", s.options.Metrics)
	}
	if s.options.Sync != nil {
		s.mux.Handle("/swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
		s.mux.HandleFunc("GET /v1/mappings/{aggregate_type}/{id}", s.handleGetMapping)
		s.mux.HandleFunc("GET /v1/ledger/{unique_identifier}", s.handleGetLedger)
	}
	if s.options.State != nil {
		s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.options.Ready != nil {
		if err := s.options.Ready(r.Context()); err != nil {
			s.logger.Warn("health check failed",
				"event", "http_health_check_failed",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"error", err.Error(),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	resp, err := s.options.Sync.Handler.MappingHandler(r.Context(), r.PathValue("aggregate_type"), r.PathValue("id"))
	if err != nil {
		s.writeSyncDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	resp, err := s.options.Sync.Handler.LedgerHandler(r.Context(), r.PathValue("unique_identifier"))
	if err != nil {
		s.writeSyncDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"directions": s.options.State.Snapshot(),
	})
}

func (s *Server) writeSyncDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncerrors.ErrMappingNotFound):
		writeSyncError(w, http.StatusNotFound, "mapping_not_found", err.Error())
	case errors.Is(err, syncerrors.ErrInvalidPayload):
		writeSyncError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("operator lookup failed",
			"event", "http_lookup_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeSyncError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeSyncError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, synchttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

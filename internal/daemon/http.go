package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mxf-project/mxf/internal/observability"
)

// httpServer carries the process's plaintext HTTP surface: health,
// Prometheus scrape, and the websocket upgrade endpoint. Grounded on the
// teacher's startHTTPServer/stopHTTPServer/handleHealthz
// (internal/gateway/http_server.go), narrowed to MXF's surface since
// there is no web UI or webhook ingress in this spec's scope.
type httpServer struct {
	server   *http.Server
	listener net.Listener
	logger   *observability.Logger
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWebsocket)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.http = &httpServer{server: server, listener: listener, logger: s.logger}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "http server error", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting http server", "addr", addr)
	return nil
}

func (s *Server) stopHTTPServer(ctx context.Context) {
	if s.http == nil || s.http.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.http.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "http server shutdown error", "error", err)
	}
	s.http = nil
}

// handleHealthz reports liveness plus a coarse count of active sessions
// and runtimes, enough for an operator probe without the teacher's
// channel-probing variant (MXF has no outbound channel adapters to probe).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.runtimesMu.Lock()
	runtimeCount := len(s.runtimes)
	s.runtimesMu.Unlock()

	response := map[string]any{
		"status":         "ok",
		"sessions":       s.Sessions.Count(),
		"agent_runtimes": runtimeCount,
	}
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

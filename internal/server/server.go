package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const (
	defaultDays  = 7
	defaultLimit = 10
	maxLimit     = 100
)

// Store is the read-only data the status endpoints expose.
type Store interface {
	DeliveryStats(ctx context.Context, days int) (notice.DeliveryStats, error)
	RecentRuns(ctx context.Context, limit int) ([]notice.Run, error)
}

// Server is the status HTTP server of the daemon.
type Server struct {
	store Store
	mux   *http.ServeMux
}

// New creates a new Server.
func New(store Store) *Server {
	s := &Server{store: store, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(w, r, "days", defaultDays)
	if !ok {
		return
	}
	stats, err := s.store.DeliveryStats(r.Context(), days)
	if err != nil {
		slog.Error("loading delivery stats", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "stats": stats})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	limit = min(limit, maxLimit)
	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("loading runs", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if runs == nil {
		runs = []notice.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// intParam reads a positive integer query parameter, writing a 400 on bad input.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, store Store, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           New(store).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", "http://"+addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

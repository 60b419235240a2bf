package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"portshare/internal/api"
	"portshare/internal/bus"
	"portshare/internal/capture"
	"portshare/internal/logging"
	"portshare/internal/observer"
)

const shutdownGrace = 5 * time.Second

// Options configures the HTTP listener.
type Options struct {
	Port         int
	TLSCert      string
	TLSKey       string
	ResourcesDir string
}

// Server serves resources, accepts captures and exposes the live bus.
type Server struct {
	opts   Options
	bus    *bus.Bus
	logger logrus.FieldLogger
	router *mux.Router
}

// New wires the routes. logger may be nil.
func New(opts Options, b *bus.Bus, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{opts: opts, bus: b, logger: logger}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/reset", s.handleReset).Methods(http.MethodPost)
	r.Handle("/ws", observer.NewHandler(s.bus, s.logger)).Methods(http.MethodGet)
	r.Handle("/capture", capture.NewHandler(s.bus, s.logger)).Methods(http.MethodPost)
	if s.opts.ResourcesDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.ResourcesDir))).Methods(http.MethodGet, http.MethodHead)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	return r
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.opts.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tls := s.opts.TLSCert != "" && s.opts.TLSKey != ""
		s.logger.WithFields(logrus.Fields{"addr": ln.Addr().String(), "tls": tls}).Info("server listening")
		if tls {
			errCh <- srv.ServeTLS(ln, s.opts.TLSCert, s.opts.TLSKey)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Stats())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.History())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.bus.Reset()
	writeJSON(w, http.StatusOK, s.bus.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}

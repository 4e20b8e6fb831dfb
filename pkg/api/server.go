// Package api serves sirsim experiments over HTTP.
package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/sirsim/pkg/blob"
	"github.com/rmax-ai/sirsim/pkg/experiment"
	"github.com/rmax-ai/sirsim/pkg/simulation"
	"github.com/rmax-ai/sirsim/pkg/store"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

const maxBodyBytes = 1 << 20

// ExperimentService is satisfied by *experiment.Service.
type ExperimentService interface {
	Run(ctx context.Context, req experiment.Request, opts ...simulation.Option) (*experiment.Result, error)
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, filter store.RunFilter) ([]store.Run, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	experiments ExperimentService
	artifacts   blob.BlobStore
	server      *http.Server
	logger      *slog.Logger
	tokenHash   string

	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance. addr defaults to 127.0.0.1:8095.
func NewServer(experiments ExperimentService, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = "127.0.0.1:8095"
	}
	s := &Server{experiments: experiments, logger: logger}

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		// Ensembles run inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/simulations", s.withAuth(s.handleSimulations))
	mux.HandleFunc("/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /v1/runs/{id}/artifacts/{key...}", s.handleArtifact)

	return s.withLogging(s.withRecovery(withSecureHeaders(mux)))
}

// SetArtifacts enables artifact downloads from the given store.
func (s *Server) SetArtifacts(b blob.BlobStore) {
	s.artifacts = b
}

// SetToken requires "Authorization: Bearer <token>" on simulation submits.
func (s *Server) SetToken(token string) {
	if token == "" {
		s.tokenHash = ""
		return
	}
	s.tokenHash = hashToken(token)
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	s.logger.Info("server_starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Middleware: Auth
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			next(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"unauthorized","details":"missing_token"}`, http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, `{"error":"unauthorized","details":"invalid_token_format"}`, http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(hashToken(parts[1])), []byte(s.tokenHash)) != 1 {
			http.Error(w, `{"error":"unauthorized","details":"invalid_token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", "error", fmt.Sprint(err), "path", r.URL.Path, "trace_id", getTraceID(r.Context()))
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:;")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
	"github.com/blackmichael/bluesky-thread2page/internal/document"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

// maxRequestBytes bounds the thread payload accepted by /compile.
const maxRequestBytes = 4 << 20

// Server is the HTTP server exposing health and compile preview endpoints.
type Server struct {
	compiler   *compiler.Compiler
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server listening on port.
func NewServer(port int, comp *compiler.Compiler, logger *slog.Logger) *Server {
	s := &Server{
		compiler: comp,
		logger:   logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /compile", s.handleCompile)
	return withLogging(s.logger, mux)
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// compileRequest is the body of POST /compile.
type compileRequest struct {
	Posts      domain.ThreadPath `json:"posts"`
	ExcludeURI string            `json:"exclude_uri,omitempty"`
}

type compileResponse struct {
	Title      string          `json:"title"`
	AuthorName string          `json:"author_name,omitempty"`
	AuthorURL  string          `json:"author_url,omitempty"`
	Content    json.RawMessage `json:"content"`
	Bytes      int             `json:"bytes"`
	Warnings   []string        `json:"warnings,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.logger.Warn("invalid compile request", "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON thread path")
		return
	}

	result, err := s.compiler.Compile(req.Posts, req.ExcludeURI)
	if err != nil {
		status, errType := statusFor(err)
		s.logger.Warn("compile rejected", "posts", len(req.Posts), "status", status, "error", err)
		writeError(w, status, errType, err.Error())
		return
	}

	warnings := make([]string, 0, len(result.Warnings))
	for _, warn := range result.Warnings {
		warnings = append(warnings, warn.Error())
	}

	writeJSON(w, http.StatusOK, toCompileResponse(result.Document, warnings))
}

func toCompileResponse(doc document.Document, warnings []string) compileResponse {
	return compileResponse{
		Title:      doc.Title,
		AuthorName: doc.AuthorName,
		AuthorURL:  doc.AuthorURL,
		Content:    json.RawMessage(doc.Encoded),
		Bytes:      len(doc.Encoded),
		Warnings:   warnings,
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, compiler.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "DocumentTooLarge"
	case errors.Is(err, compiler.ErrEmptyThread):
		return http.StatusUnprocessableEntity, "EmptyThread"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

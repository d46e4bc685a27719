package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Rann-Studio/TokenGuardAI/internal/cache"
	"github.com/Rann-Studio/TokenGuardAI/internal/catalog"
	"github.com/Rann-Studio/TokenGuardAI/internal/engine"
	"github.com/Rann-Studio/TokenGuardAI/internal/llm"
	"github.com/Rann-Studio/TokenGuardAI/internal/models"
	"github.com/Rann-Studio/TokenGuardAI/internal/store"
)

// queryRequest is the body of POST /api/v1/query
type queryRequest struct {
	Query string `json:"query"`
}

// Server exposes the resolution engine and the catalog synchronizer over
// HTTP
type Server struct {
	router    *mux.Router
	engine    *engine.Engine
	store     store.Store
	generator llm.Generator
	sync      *catalog.Synchronizer
	address   string
	server    *http.Server
	logger    zerolog.Logger
}

// NewServer creates the API server around an already-wired engine
func NewServer(address string, eng *engine.Engine, st store.Store, generator llm.Generator, sync *catalog.Synchronizer, logger zerolog.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    eng,
		store:     st,
		generator: generator,
		sync:      sync,
		address:   address,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/query", s.handleQuery).Methods("POST")
	v1.HandleFunc("/sync", s.handleSync).Methods("POST")
}

// Router returns the underlying handler, for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "tokenguard",
		"version":   "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleQuery classifies one natural-language query and resolves it.
// Classification results are cached by fingerprint, so repeated queries skip
// the classifier entirely.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var request queryRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Query text is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	hash := cache.Fingerprint(request.Query)

	intent, err := s.classifiedIntent(ctx, hash, request.Query)
	if err != nil {
		s.logger.Error().Err(err).Msg("intent classification failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to determine intent", err)
		return
	}

	result := s.engine.Resolve(ctx, *intent, hash)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode resolution response")
	}
}

// classifiedIntent serves a cached classification when one exists for the
// fingerprint, otherwise invokes the generator and caches its output
func (s *Server) classifiedIntent(ctx context.Context, hash, query string) (*models.Intent, error) {
	cached, err := s.store.Intent(ctx, hash)
	if err != nil {
		s.logger.Error().Err(err).Str("hash", hash).Msg("intent cache lookup failed")
	}
	if cached != nil {
		return &cached.Intent, nil
	}

	intent, err := s.generator.ClassifyIntent(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertIntent(ctx, hash, *intent); err != nil {
		s.logger.Error().Err(err).Str("hash", hash).Msg("failed to cache intent")
	}
	return intent, nil
}

// handleSync triggers an on-demand catalog synchronization
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Sync(r.Context()); err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, "Catalog synchronization failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// writeErrorResponse writes an error response in a consistent format
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := models.Result{
		StatusCode: statusCode,
		Error:      http.StatusText(statusCode),
		Message:    message,
	}

	if err != nil {
		// Full details go to the log only; public responses stay sanitized
		s.logger.Error().Err(err).Int("status", statusCode).Msg(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		s.logger.Error().Err(encodeErr).Msg("failed to encode error response")
		w.Write([]byte(`{"statusCode":500,"error":"Internal Server Error"}`))
	}
}

// recoveryMiddleware catches panics and returns proper JSON error responses
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().Interface("panic", err).
					Str("method", r.Method).Str("path", r.URL.Path).
					Msg("panic in request handler")
				if w.Header().Get("Content-Type") == "" {
					s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("panic: %v", err))
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.router,

		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("address", s.address).Msg("starting API server")
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}

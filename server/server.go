// Package server exposes the orchestration loop over an OpenAI-compatible
// HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/rs/zerolog"
)

const maxRequestBodyBytes = 8 << 20

var nowFunc = time.Now

// Config holds server configuration options.
type Config struct {
	// Models lists the "provider/model" identifiers served by GET /models.
	Models []string
	Logger zerolog.Logger
}

// Server is the HTTP front end of a Crew.
type Server struct {
	crew       *agent.Crew
	models     []string
	httpServer *http.Server
	logger     zerolog.Logger
	startedAt  time.Time
}

// New creates a new Server.
func New(cfg Config, crew *agent.Crew) *Server {
	s := &Server{
		crew:   crew,
		models: cfg.Models,
		logger: cfg.Logger.With().Str("component", "http-server").Logger(),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes. Paths are served both bare and under /v1 so
// OpenAI SDKs work with either base URL.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/v1"} {
		mux.HandleFunc("POST "+prefix+"/chat/completions", s.handleChatCompletions)
		mux.HandleFunc("GET "+prefix+"/models", s.handleModels)
	}
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return s.logRequests(mux)
}

// Serve starts the server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = nowFunc()
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gracefully stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests logs every request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := nowFunc()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := nowFunc().Sub(start)

		event := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("Request completed")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(nowFunc().Sub(s.startedAt).Seconds()),
	})
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Message: message,
			Type:    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

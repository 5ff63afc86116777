// Package server exposes the coalescer over HTTP: callers POST one
// logical read or write and block until their window has executed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"cellmux/internal/cellref"
	"cellmux/internal/coalesce"
	"cellmux/internal/config"
	"cellmux/internal/grid"
	"cellmux/internal/split"
)

// Server represents the HTTP front of the coalescing layer.
type Server struct {
	cfg        *config.Config
	coalescer  *coalesce.Coalescer
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates a new Server.
func New(cfg *config.Config, coalescer *coalesce.Coalescer, logger zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		coalescer: coalescer,
		logger:    logger.With().Str("component", "server").Logger(),
	}
}

// submitRequest is the caller-facing wire shape.
type submitRequest struct {
	SheetID string      `json:"sheetId"`
	Range   string      `json:"range"`
	Kind    string      `json:"kind"` // "read" or "write"
	Values  grid.Matrix `json:"values,omitempty"`
}

// submitResponse carries either the read result or a write acknowledgment.
type submitResponse struct {
	Values grid.Matrix `json:"values,omitempty"`
	Ack    bool        `json:"ack,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/submit", s.handleSubmit)
	mux.HandleFunc("GET /health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server and drains the coalescer.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	if err := s.coalescer.Close(ctx); err != nil {
		return fmt.Errorf("coalescer shutdown error: %w", err)
	}
	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var kind coalesce.Kind
	switch req.Kind {
	case "read", "":
		kind = coalesce.KindRead
	case "write":
		kind = coalesce.KindWrite
	default:
		writeError(w, http.StatusBadRequest, "kind must be \"read\" or \"write\"")
		return
	}

	future, err := s.coalescer.SubmitAddress(r.Context(), req.SheetID, s.cfg.DefaultSheet, req.Range, kind, req.Values)
	if err != nil {
		writeError(w, submitErrorStatus(err), err.Error())
		return
	}

	select {
	case res := <-future:
		if res.Err != nil {
			writeError(w, resultErrorStatus(res.Err), res.Err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if kind == coalesce.KindWrite {
			json.NewEncoder(w).Encode(submitResponse{Ack: true})
			return
		}
		json.NewEncoder(w).Encode(submitResponse{Values: res.Values})
	case <-r.Context().Done():
		// The request stays in its window; only this caller stops waiting.
		writeError(w, http.StatusRequestTimeout, "client went away")
	}
}

func submitErrorStatus(err error) int {
	var malformed *cellref.MalformedRangeError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest
	}
	if errors.Is(err, coalesce.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func resultErrorStatus(err error) int {
	var oob *split.OutOfBoundsError
	var cross *cellref.CrossSheetError
	if errors.As(err, &oob) || errors.As(err, &cross) {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// Package bridge exposes the background context to the companion web
// frontend over local HTTP.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"feedrelay/pkg/config"
	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/messaging"
	"feedrelay/pkg/models"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// external message types the frontend may send
var externalTypes = map[string]bool{
	models.MsgStartSync:      true,
	models.MsgCheckExtension: true,
	models.MsgConfigure:      true,
	models.MsgAuthSuccess:    true,
	models.MsgAuthLogout:     true,
	models.MsgGetStatus:      true,
	models.MsgStopScraping:   true,
}

// Envelope is the request body of POST /external
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply is the response body of POST /external
type Reply struct {
	Success bool               `json:"success"`
	Data    messaging.Response `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
	Kind    string             `json:"kind,omitempty"`
}

// Server forwards frontend envelopes to the background context
type Server struct {
	bind    string
	origins map[string]bool
	ep      *messaging.Endpoint
	version string
	logger  logger.Logger

	listener net.Listener
	server   *http.Server
}

// New creates a bridge server. ep should be a dedicated bus endpoint.
func New(cfg config.BridgeConfig, ep *messaging.Endpoint, version string, log logger.Logger) *Server {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	s := &Server{
		bind:    cfg.Listen,
		origins: origins,
		ep:      ep,
		version: version,
		logger:  logger.OrDefault(log).WithField("component", "bridge"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the bridge routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/external", s.handleExternal)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens and serves until ctx ends
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Bridge server error")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logger.LogComponentStart(s.logger, "bridge", map[string]interface{}{"address": listener.Addr().String()})
	return nil
}

// Stop shuts the server down
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request) {
	if !s.allowOrigin(w, r) {
		s.writeError(w, http.StatusForbidden, "origin not allowed", "")
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body", "")
		return
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid envelope", string(errs.ErrorTypeParsing))
		return
	}
	if !externalTypes[env.Type] {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported message type %q", env.Type), "")
		return
	}

	msg := messaging.Message{ID: uuid.NewString(), Type: env.Type, Data: env.Data}
	resp, err := s.ep.Request(r.Context(), messaging.Background, msg)
	if err != nil {
		status, kind := classify(err)
		s.logger.WithError(err).DebugWithFields("External message failed", map[string]interface{}{"type": env.Type})
		s.writeError(w, status, err.Error(), kind)
		return
	}

	s.writeJSON(w, http.StatusOK, Reply{Success: true, Data: resp})
}

// allowOrigin sets CORS headers for allow-listed origins. Requests without
// an Origin header come from local tools and are accepted.
func (s *Server) allowOrigin(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" {
		return true
	}
	if !s.origins[origin] {
		s.logger.WarnWithFields("Rejected request from origin", map[string]interface{}{"origin": origin})
		return false
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Vary", "Origin")
	return true
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrRunActive):
		return http.StatusConflict, "run_active"
	}

	// the background's own error sits beneath the remote wrapper
	kind := errs.TypeOf(err)
	var typed *errs.Error
	if errors.As(err, &typed) && typed.Type == errs.ErrorTypeRemote && typed.Err != nil {
		kind = errs.TypeOf(typed.Err)
	}

	switch kind {
	case errs.ErrorTypeAuth:
		return http.StatusUnauthorized, string(kind)
	case errs.ErrorTypeParsing:
		return http.StatusBadRequest, string(kind)
	case errs.ErrorTypeTimeout, errs.ErrorTypeUnreachable:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, Reply{Success: false, Error: message, Kind: kind})
}

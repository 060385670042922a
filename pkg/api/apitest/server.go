// Package apitest provides an in-process feedrelay backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"feedrelay/pkg/api"
	"feedrelay/pkg/models"
)

// Server simulates the backend routes with injectable failures
type Server struct {
	server *httptest.Server
	token  string
	user   models.User

	mu       sync.RWMutex
	queued   []api.QueueRequest
	reject   map[string]int // content -> status code
	memos    []string
	requests int32
}

// NewServer accepts bearer token and answers /identity/me with user
func NewServer(token string, user models.User) *Server {
	s := &Server{token: token, user: user, reject: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathIdentityMe, s.handleMe)
	mux.HandleFunc(api.PathQueueItem, s.handleQueue)
	mux.HandleFunc(api.PathMemos, s.handleMemo)
	s.server = httptest.NewServer(mux)
	return s
}

// URL is the base URL of the server
func (s *Server) URL() string { return s.server.URL }

// Close shuts the server down
func (s *Server) Close() { s.server.Close() }

// Reject makes items with this content fail with status
func (s *Server) Reject(content string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[content] = status
}

// Queued returns the accepted queue requests
func (s *Server) Queued() []api.QueueRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.QueueRequest, len(s.queued))
	copy(out, s.queued)
	return out
}

// Memos returns the uploaded memo filenames
func (s *Server) Memos() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.memos...)
}

// Requests counts every request received
func (s *Server) Requests() int {
	return int(atomic.LoadInt32(&s.requests))
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	atomic.AddInt32(&s.requests, 1)
	if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != s.token || s.token == "" {
		s.sendError(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	return true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.user)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body api.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	status, rejected := s.reject[body.Content]
	if !rejected {
		s.queued = append(s.queued, body)
	}
	n := len(s.queued)
	s.mu.Unlock()

	if rejected {
		s.sendError(w, status, fmt.Sprintf("rejected %q", body.Content))
		return
	}
	writeJSON(w, http.StatusOK, api.QueueResponse{ID: fmt.Sprintf("q-%d", n), Status: "queued"})
}

func (s *Server) handleMemo(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "missing audio")
		return
	}
	file.Close()

	s.mu.Lock()
	s.memos = append(s.memos, header.Filename)
	n := len(s.memos)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.MemoResponse{ID: fmt.Sprintf("m-%d", n), Filename: header.Filename, Status: "stored"})
}

func (s *Server) sendError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Package relaystub serves a local stand-in for the relay service: a /health
// route plus a blocking and a non-blocking relay route that answer with the
// same JSON envelope as the real deployment.
package relaystub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const defaultGreeting = "Hello, world"

// Options shape the simulated upstream.
type Options struct {
	// UpstreamDelay is how long each relayed call takes.
	UpstreamDelay time.Duration
	// UpstreamTimeout fails relayed calls slower than this with a 504. Zero
	// disables it.
	UpstreamTimeout time.Duration
	// Workers bounds concurrent sync relays; further sync requests queue.
	// Values below one mean one.
	Workers int
	Greeting string
}

// Server is the stub. Its handler is safe for concurrent use.
type Server struct {
	opts    Options
	slots   chan struct{}
	relayed atomic.Int64
	waiting atomic.Int64
}

func New(opts Options) *Server {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Greeting == "" {
		opts.Greeting = defaultGreeting
	}
	return &Server{opts: opts, slots: make(chan struct{}, opts.Workers)}
}

// Handler routes /health, /call-tornado and /call-tornado-async.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/call-tornado", s.handleSync)
	mux.HandleFunc("/call-tornado-async", s.handleAsync)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found", "path": r.URL.Path})
	})
	return mux
}

// Relayed returns the number of completed relay calls.
func (s *Server) Relayed() int64 { return s.relayed.Load() }

// Queued returns the number of sync requests waiting for a worker.
func (s *Server) Queued() int64 { return s.waiting.Load() }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": "relay stub"})
}

// handleSync holds a worker for the whole upstream call, so a burst larger
// than Workers queues up behind it.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	s.waiting.Add(1)
	select {
	case s.slots <- struct{}{}:
		s.waiting.Add(-1)
	case <-r.Context().Done():
		s.waiting.Add(-1)
		return
	}
	defer func() { <-s.slots }()
	s.relay(w, r)
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	s.relay(w, r)
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request) {
	endpoint := r.FormValue("endpoint")
	if endpoint == "" {
		endpoint = "/"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	delay := s.opts.UpstreamDelay
	timedOut := s.opts.UpstreamTimeout > 0 && delay > s.opts.UpstreamTimeout
	if timedOut {
		delay = s.opts.UpstreamTimeout
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	if timedOut {
		respondJSON(w, http.StatusGatewayTimeout, map[string]any{
			"success": false,
			"error":   "Request to upstream timed out.",
		})
		return
	}

	s.relayed.Add(1)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"status_code":   http.StatusOK,
		"response_text": s.opts.Greeting,
		"url_called":    "stub://upstream" + endpoint,
	})
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "error": "method not allowed"})
	return false
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

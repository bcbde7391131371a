// Package webhookd implements the HTTP front door described in §6.4:
// a privileged client of a photon daemon's socket that turns inbound
// webhook POSTs into command frames. It never duplicates the Webhook
// Router's binding rules — it asks the daemon's list_webhooks and
// caches the answer, re-resolving on a miss in case routes changed
// underneath it (a reload, say).
package webhookd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/photon-run/photond/internal/client"
	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/protocol"
)

type Server struct {
	paths  *config.Paths
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *client.Client
	routes map[string]string
}

func New(paths *config.Paths, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{paths: paths, logger: logger}
}

// Router builds the mux.Router front door: POST /webhook/<path> is
// the only surface that reaches the daemon, plus a liveness probe.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook/{path:.*}", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	method, ok := s.resolve(path)
	if !ok {
		if err := s.refreshRoutes(); err != nil {
			s.logger.Warn("webhook route refresh failed", "error", err)
			http.Error(w, "daemon unreachable", http.StatusBadGateway)
			return
		}
		method, ok = s.resolve(path)
		if !ok {
			http.NotFound(w, r)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	args := json.RawMessage(body)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	c, err := s.ensureClient()
	if err != nil {
		http.Error(w, "daemon unreachable", http.StatusBadGateway)
		return
	}

	resp, err := c.Call(&protocol.Request{
		Type:      "command",
		Method:    method,
		Args:      args,
		SessionID: "webhook:" + path,
	}, 30*time.Second)
	if err != nil {
		s.invalidateClient()
		http.Error(w, fmt.Sprintf("daemon call failed: %v", err), http.StatusBadGateway)
		return
	}
	if resp.Type == "error" {
		status := http.StatusInternalServerError
		if resp.Kind == "user-error" {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, resp.Error, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(resp.Result)
}

func (s *Server) ensureClient() (*client.Client, error) {
	s.mu.RLock()
	c := s.conn
	s.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	c, err := client.Dial(s.paths)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return c, nil
}

func (s *Server) invalidateClient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) refreshRoutes() error {
	c, err := s.ensureClient()
	if err != nil {
		return err
	}
	resp, err := c.Call(&protocol.Request{Type: "list_webhooks"}, 5*time.Second)
	if err != nil {
		s.invalidateClient()
		return err
	}
	routes := make(map[string]string, len(resp.Webhooks))
	for _, wh := range resp.Webhooks {
		routes[wh.Path] = wh.Method
	}
	s.mu.Lock()
	s.routes = routes
	s.mu.Unlock()
	return nil
}

func (s *Server) resolve(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	method, ok := s.routes[path]
	return method, ok
}

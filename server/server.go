// Package server exposes the scheduler's current schedule over HTTP and a websocket broadcast:
// /health, /status and /ws.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oskarsson/pvsched/blockplan"
)

// Server serves the most recently computed schedule. Publish is called by the orchestrator after
// every planning cycle; it updates the in-memory snapshot and fans the result out to connected
// websocket clients.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    sync.Map
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	latest  *blockplan.SchedulerResult
	lastRun time.Time
	lastErr string
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Status    string                  `json:"status"`
	LastRun   *time.Time              `json:"last_run,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
	BaseCost  float64                 `json:"base_cost,omitempty"`
	TotalCost float64                 `json:"total_cost,omitempty"`
	Blocks    []blockplan.OutputBlock `json:"blocks,omitempty"`
}

// New builds a Server listening on port. A non-positive port disables the server.
func New(port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/ws", s.wsHandler)

	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go s.handleBroadcasts()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("server: listen error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, closing every connected websocket client.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.httpServer.Shutdown(ctx)
}

// Publish records result as the current schedule and broadcasts it to connected websocket
// clients. Call it once per completed planning cycle; pass planErr (nil on success) to record the
// cycle's outcome for /status.
func (s *Server) Publish(result blockplan.SchedulerResult, planErr error) {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.latest = &result
	s.lastRun = time.Now().UTC()
	if planErr != nil {
		s.lastErr = planErr.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	message, err := json.Marshal(result.Blocks)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- message:
	default: // a full buffer means no one is listening fast enough; drop rather than block
	}
}

func (s *Server) snapshot() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{Status: "healthy", LastError: s.lastErr}
	if s.lastErr != "" {
		resp.Status = "degraded"
	}
	if !s.lastRun.IsZero() {
		lastRun := s.lastRun
		resp.LastRun = &lastRun
	}
	if s.latest != nil {
		resp.BaseCost = s.latest.BaseCost
		resp.TotalCost = s.latest.TotalCost
		resp.Blocks = s.latest.Blocks
	}
	return resp
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("server: websocket upgrade error: %v\n", err)
		return
	}
	s.clients.Store(conn, true)
	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		if data, err := json.Marshal(latest.Blocks); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

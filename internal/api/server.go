// Package api serves a read-only view of the daemon's state over HTTP on a
// unix socket. Nothing here mutates state; commands go through the control
// socket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/config"
	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by /api/health
var Version = "dev"

// StateSource is the part of the cycle controller the status server reads
type StateSource interface {
	Snapshot() cycle.Snapshot
	Subscribe() chan cycle.Snapshot
	Unsubscribe(ch chan cycle.Snapshot)
}

// Server represents the status server
type Server struct {
	router   *mux.Router
	state    StateSource
	config   *config.Config
	backend  string
	started  time.Time
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	socketPath string
	done       chan struct{}
	closeOnce  sync.Once
}

// NewServer creates a status server. cfg is served as-is by /api/config.
func NewServer(state StateSource, cfg *config.Config, backend string) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		state:   state,
		config:  cfg,
		backend: backend,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			// Only local clients can reach the socket
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Cycle state
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/state/stream", s.handleStateStream)
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/current", s.handleGetCurrentWindow).Methods("GET")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the unix socket, replacing a leftover file
func (s *Server) Listen(socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create status socket directory: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old status socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on status socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to restrict status socket permissions: %w", err)
	}

	s.listener = listener
	s.socketPath = socketPath
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Serve handles requests until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("status server is not listening")
	}
	log := logger.WithComponent("api")
	log.Info().Str("path", s.socketPath).Msg("Status server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}

	s.closeOnce.Do(func() { close(s.done) })
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status server shutdown")
	}
	<-errCh
	os.Remove(s.socketPath)
	log.Info().Msg("Status server stopped")
	return nil
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.state.Snapshot())
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.state.Snapshot().Windows)
}

func (s *Server) handleGetCurrentWindow(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	if snap.Selected == nil {
		http.Error(w, "No window selected", http.StatusNotFound)
		return
	}
	writeJSON(w, snap.Selected)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.config)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"backend": s.backend,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Subscribe before the initial snapshot so no transition is missed
	updates := s.state.Subscribe()
	defer s.state.Unsubscribe(updates)

	if err := conn.WriteJSON(s.state.Snapshot()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	// Detect client disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-gone:
			return
		case <-s.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"))
			return
		}
	}
}

// Package server is the HTTP transport binding for C4's sync protocol:
// it listens on one port and dispatches every request to a
// *sync.Router, the way forgor/internal/server.Server binds its
// per-resource REST routes to a *storage.Store, collapsed to the
// spec's single multiplexed endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/metasecret/metasecret/internal/sync"
)

// Server hosts the sync protocol over HTTP.
type Server struct {
	httpServer *http.Server
	router     *sync.Router
	addr       string
}

// New builds a server bound to addr (e.g. ":7777") that dispatches every
// request on sync.SyncPath to router.
func New(router *sync.Router, addr string) *Server {
	return &Server{router: router, addr: addr}
}

// Start opens the listener and begins serving in the background. It
// returns once the listener is bound, not once the server stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc(sync.SyncPath, s.handleSync)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("sync server error: %v\n", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16*1024*1024))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var req sync.SyncRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp, err := s.router.Handle(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		fmt.Printf("failed to encode sync response: %v\n", err)
	}
}

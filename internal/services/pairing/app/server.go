// Package app wires the pairing session store into a runnable HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/louisbranch/warden/internal/platform/timeouts"
	pairingservice "github.com/louisbranch/warden/internal/services/pairing"
)

// Server hosts the pairing session store service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *pairingservice.Store
	service    *pairingservice.Server
	config     pairingservice.Config
}

// New creates a configured pairing server listening on the configured address.
func New(config pairingservice.Config) (*Server, error) {
	listener, err := net.Listen("tcp", config.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", config.HTTPAddr, err)
	}

	if dir := filepath.Dir(config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := pairingservice.OpenStore(config.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("open pairing store: %w", err)
	}

	service := pairingservice.NewServer(config, store)
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader},
		store:      store,
		service:    service,
		config:     config,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a pairing server until the context ends.
func Run(ctx context.Context, config pairingservice.Config) error {
	server, err := New(config)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := s.store.Close(); err != nil {
			log.Printf("close pairing store: %v", err)
		}
	}()

	s.service.StartCleanup(serverCtx, s.config.CleanupInterval)

	log.Printf("pairing session store listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

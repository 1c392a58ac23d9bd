// Package natstest runs an embedded NATS server with JetStream for tests.
package natstest

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// Server wraps an embedded NATS server.
type Server struct {
	srv          *server.Server
	url          string
	shutdownOnce sync.Once
}

// Start launches the server on a random port with JetStream enabled.
func Start(storeDir string) (*Server, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded server not ready")
	}
	return &Server{srv: srv, url: srv.ClientURL()}, nil
}

// URL returns the client connection URL.
func (s *Server) URL() string {
	return s.url
}

// Shutdown stops the server. Safe to call multiple times.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.srv.Shutdown()
		s.srv.WaitForShutdown()
	})
}

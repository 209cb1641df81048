package web

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Server holds the HTTP server and its routes.
type Server struct {
	mux     *http.ServeMux
	gateway *Gateway
}

// NewServer wires the gateway's handlers into a mux.
func NewServer(gateway *Gateway) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		gateway: gateway,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/chat", s.gateway.HandleChat)
	s.mux.HandleFunc("/api/reset", s.gateway.HandleReset)
	s.mux.HandleFunc("/api/status", s.gateway.HandleStatus)
	s.mux.HandleFunc("/ws/chat/", s.gateway.HandleWS)
}

// Handler exposes the mux, mostly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr with graceful shutdown. On SIGINT/SIGTERM it
// waits up to 10s for in-flight requests, then tears down the gateway
// so recorders and tool resources are released.
func (s *Server) Start(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("[Web] Received signal %v, shutting down gracefully...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Web] Graceful shutdown error: %v", err)
		}
	}()

	log.Printf("[Web] Listening on %s", addr)
	err := srv.ListenAndServe()
	s.gateway.Close()
	if err == http.ErrServerClosed {
		log.Printf("[Web] Server stopped gracefully")
		return nil
	}
	return err
}

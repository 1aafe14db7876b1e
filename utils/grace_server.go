package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute // multi-file uploads on slow links
	DefaultShutdownTimeout = 30 * time.Second
)

// Server wraps http.Server with signal driven graceful shutdown.
type Server struct {
	*http.Server

	shutdownTimeout time.Duration
	signalChan      chan os.Signal
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		shutdownTimeout: DefaultShutdownTimeout,
		signalChan:      make(chan os.Signal, 1),
	}
}

// ListenAndServe serves until SIGINT/SIGTERM, then drains in-flight requests.
func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("net.Listen error: %w", err)
	}
	return srv.Serve(ln)
}

// Serve runs on an existing listener; exposed so tests can pick a free port.
func (srv *Server) Serve(ln net.Listener) error {
	signal.Notify(srv.signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(srv.signalChan)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-srv.signalChan:
		Sugar.Infof("received %s, graceful shutting down HTTP server", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	Sugar.Info("HTTP server shutdown success")
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GraceServer starts an HTTP server with graceful shutdown.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler, DefaultReadTimeout, DefaultWriteTimeout).ListenAndServe()
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/config"
	"github.com/matheus3301/wppq/internal/session"
	"go.uber.org/zap"
)

// Server owns the operator API listener for a session daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the API to api.listen when configured, else to the
// session's unix socket with 0600 permissions.
func NewServer(p Params, cfg *config.Config, handler *api.Handler, logger *zap.Logger) (*Server, error) {
	var (
		listener   net.Listener
		socketPath string
		err        error
	)
	if cfg.API.Listen != "" {
		listener, err = net.Listen("tcp", cfg.API.Listen)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", cfg.API.Listen, err)
		}
	} else {
		socketPath = session.SocketPath(p.SessionName)
		listener, err = listenUnix(socketPath)
		if err != nil {
			return nil, err
		}
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

func listenUnix(socketPath string) (net.Listener, error) {
	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start serves requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("addr", s.listener.Addr().String()))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down gracefully and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("api shutdown", zap.Error(err))
	}
	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server serves the inspector API. An empty address disables it.
type Server struct {
	logger *slog.Logger
	addr   string
	srv    *http.Server
}

func NewServer(logger *slog.Logger, addr string, h *Handler) *Server {
	return &Server{
		logger: logger,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds synchronously so a busy port fails startup, then serves in the background.
func (s *Server) Start(context.Context) error {
	if s.addr == "" {
		s.logger.Info("HTTP_DISABLED")
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.addr, err)
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVE_FAILED", "err", err)
		}
	}()
	s.logger.Info("HTTP_LISTENING", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

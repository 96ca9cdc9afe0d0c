package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
)

const (
	defaultAddr         = ":8080"
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

type ServerDeps struct {
	Logger  logger.Logger
	Cfg     *config.HTTPConfig
	Handler http.Handler
}

type Server struct {
	log logger.Logger
	srv *http.Server
	ln  net.Listener
}

func NewServer(d *ServerDeps) (*Server, error) {
	if d == nil || d.Cfg == nil {
		return nil, errors.New("config is required to the http server")
	}
	if d.Handler == nil {
		return nil, errors.New("handler is required to the http server")
	}

	cfg := *d.Cfg
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}

	return &Server{
		log: d.Logger,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           d.Handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}, nil
}

// Listen binds the address so Addr is known before Start
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a clean stop
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.log.Infof("HTTP server listening on %s", s.ln.Addr())
	return s.srv.Serve(s.ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

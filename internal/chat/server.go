package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Options configures a Server.
type Options struct {
	Addr                  string
	WebSocketAddr         string // empty disables the WebSocket listener
	OutboundBuffer        int
	MaxMessageLength      int
	WriteTimeout          time.Duration
	DrainTimeout          time.Duration
	ExcludeSelfFromOnline bool
	Now                   func() time.Time
}

type Server struct {
	opts       Options
	logger     *slog.Logger
	reg        *Registry
	router     *Router
	supervisor *Supervisor

	listener   net.Listener
	wsListener net.Listener
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopping bool
	conns    map[Conn]struct{}
}

func NewServer(opts Options, creds Credentials, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 512
	}
	reg := NewRegistry(logger)
	router := NewRouter(reg, RouterConfig{
		Now:                   opts.Now,
		ExcludeSelfFromOnline: opts.ExcludeSelfFromOnline,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:   opts,
		logger: logger,
		reg:    reg,
		router: router,
		supervisor: NewSupervisor(reg, router, creds, SupervisorConfig{
			MaxMessageLength: opts.MaxMessageLength,
			DrainTimeout:     opts.DrainTimeout,
		}, logger),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[Conn]struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	if s.opts.WebSocketAddr != "" {
		wsln, err := net.Listen("tcp", s.opts.WebSocketAddr)
		if err != nil {
			ln.Close()
			return err
		}
		s.wsListener = wsln
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.WebSocketHandler)
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := s.httpServer.Serve(wsln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket server stopped", "error", err)
			}
		}()
		s.logger.Info("websocket listener started", "addr", wsln.Addr().String())
	}

	go s.reg.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound TCP address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebSocketAddr is the bound WebSocket address, nil when disabled.
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// Stop closes the listeners, ends every live connection so its supervisor
// runs terminal cleanup, and then stops the registry.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	s.mu.Lock()
	s.stopping = true
	conns := make([]Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket server shutdown", "error", err)
		}
		cancel()
	}
	s.cancel()

	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()

	s.reg.Stop()
	s.reg.Wait()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed: normal shutdown.
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String(), "transport", "tcp")
		go s.serve(NewTCPConn(conn, s.opts.WriteTimeout))
	}
}

// serve runs one connection to completion.
func (s *Server) serve(conn Conn) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.supervisor.Handle(s.ctx, NewSession(conn, s.opts.OutboundBuffer))
}

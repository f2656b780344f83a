// Package server accepts device connections and speaks the OTA protocol on them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/history"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPort        = 9999
	DefaultBindAddress = "0.0.0.0"
	DefaultIdleTimeout = 5 * time.Minute

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type ServerConfig struct {
	Logger      *zap.SugaredLogger
	Store       *catalog.Store
	Recorder    history.Recorder
	BindAddress string
	Port        int
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
	Tracer      trace.Tracer
}

type Server struct {
	log         *zap.SugaredLogger
	handler     *Handler
	addr        string
	idleTimeout time.Duration

	sessions sync.WaitGroup
}

func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog store must not be nil")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("history recorder must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/logicpi/mcu-ota-server/server")
	}

	log := cfg.Logger.Named("server")
	return &Server{
		log:         log,
		handler:     NewHandler(log, cfg.Store, cfg.Recorder, cfg.Tracer),
		addr:        net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)),
		idleTimeout: cfg.IdleTimeout,
	}, nil
}

// Serve listens on the configured address until ctx is done. A failing bind
// is returned immediately.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener accepts connections on listener until ctx is done, then waits
// for the open connections to finish.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	s.log.Infow("serve ota protocol", "address", listener.Addr().String(), "idle-timeout", s.idleTimeout)

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()
	defer s.sessions.Wait()

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Infow("listener stopped")
				return nil
			}
			if !temporary(err) {
				return fmt.Errorf("accept failed: %w", err)
			}
			delay = min(max(2*delay, minAcceptDelay), maxAcceptDelay)
			s.log.Warnw("accept failed, retrying", "error", err, "retry-in", delay)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs the protocol on a single connection until it is closed.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	newSession(s.log, conn, s.handler, s.idleTimeout).run(ctx)
}

// temporary reports whether an accept error goes away by itself, like running
// out of file descriptors while connections are open.
func temporary(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

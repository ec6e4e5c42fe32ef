// Package httpserver implements the accept loop (C8) and request router
// (C9): a hand-rolled HTTP/1.1 framing layer over a raw net.Listener, in
// place of net/http, so request parsing work is bounded and each
// connection's lifecycle is owned by one C7 worker end to end.
package httpserver

import (
	"context"
	"net"
	"time"

	"github.com/adred-codev/metricstream/internal/ingest"
	"github.com/adred-codev/metricstream/internal/monitoring"
	"github.com/adred-codev/metricstream/internal/ratelimit"
	"github.com/adred-codev/metricstream/internal/workerpool"
	"github.com/adred-codev/metricstream/internal/writer"
	"github.com/rs/zerolog"
)

// Config configures the accept loop and per-connection behavior.
type Config struct {
	Addr        string
	IdleTimeout time.Duration
	BodyCap     int
}

// Server is C8: a single accept loop on one listening socket, handing
// each accepted connection to C7 as a Task. Grounded on src/server.go's
// Start/Shutdown orchestration (listener lifecycle, signal-driven
// graceful shutdown with a bounded grace period), adapted from that
// file's WebSocket upgrade path to plain HTTP/1.1 request/response.
type Server struct {
	cfg      Config
	listener net.Listener
	router   *Router
	pool     *workerpool.Pool
	connLim  *ConnLimiter
	logger   zerolog.Logger
}

// New constructs a Server. Call ListenAndServe to start accepting.
func New(cfg Config, limiter *ratelimit.Limiter, parser *ingest.Parser, w *writer.Writer, pool *workerpool.Pool, connLim *ConnLimiter, logger zerolog.Logger) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.BodyCap <= 0 {
		cfg.BodyCap = DefaultBodyCap
	}
	return &Server{
		cfg:     cfg,
		router:  NewRouter(limiter, parser, w, pool),
		pool:    pool,
		connLim: connLim,
		logger:  logger,
	}
}

// ListenAndServe opens the listening socket and runs the accept loop
// until ctx is cancelled. Go's net.Listen already requests the kernel's
// maximum backlog (syscall.SOMAXCONN), satisfying the >=1024 floor on any
// modern Linux default without extra tuning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server: accepting connections")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error().Err(err).Msg("http server: accept failed")
				continue
			}
		}

		if s.connLim != nil {
			host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
			if splitErr != nil {
				host = conn.RemoteAddr().String()
			}
			if !s.connLim.Allow(host) {
				conn.Close()
				continue
			}
		}

		s.accept(conn)
	}
}

// accept submits conn's lifecycle to C7. If the pool rejects, C8 itself
// writes the minimal 503 and closes, since no worker is available to do
// it (spec.md §4.8).
func (s *Server) accept(conn net.Conn) {
	task := func() {
		handleConn(conn, s.router, s.cfg.IdleTimeout, s.cfg.BodyCap, s.logger)
	}
	if s.pool.Submit(task) == workerpool.Rejected {
		monitoring.WorkerPoolRejectedTotal.Inc()
		_ = writeResponse(conn, 503, false, errorBody("queue_full", ""))
		conn.Close()
	}
}

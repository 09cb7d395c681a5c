package discovery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ServerConfig configures the daemon listeners.
type ServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	ReadTimeout time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		// Registration connections sit idle for the length of one
		// invocation; the idle window must outlast the longest call.
		ReadTimeout: 5 * time.Minute,
	}
}

// Server serves the registry over loopback TCP, one JSON envelope per
// line in each direction.
type Server struct {
	cfg      ServerConfig
	registry *Registry
	nextConn atomic.Uint64
}

func NewServer(cfg ServerConfig) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServerConfig().ListenAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultServerConfig().ReadTimeout
	}
	return &Server{cfg: cfg, registry: NewRegistry()}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve accepts clients until ctx is canceled. The optional metrics
// endpoint runs alongside on its own listener.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("discovery: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.serveListener(ctx, ln)
}

// ServeListener serves on an already-open listener; tests use this for
// port 0 binds.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("fabdiscd listening")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		return nil
	})

	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return s.serveMetrics(ctx, addr)
		})
	}

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go s.handleConn(conn)
		}
	})

	return g.Wait()
}

func (s *Server) serveMetrics(ctx context.Context, addr string) error {
	RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("fabdiscd metrics listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleConn decodes one request per line and writes one response per
// line. Registrations made on this connection die with it.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	connID := s.nextConn.Add(1)
	remote := conn.RemoteAddr().String()
	log.Debug().Uint64("conn", connID).Str("remote", remote).Msg("fabdiscd client connected")

	defer func() {
		reaped := s.registry.ReapOwner(connID)
		recordLive(s.registry.Count())
		log.Debug().Uint64("conn", connID).Int("reaped", reaped).Msg("fabdiscd client disconnected")
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(conn, response{OK: false, Error: "malformed request"})
			return
		}

		resp := s.dispatch(connID, req)
		recordOp(req.Op, resp.OK)
		recordLive(s.registry.Count())
		if !s.reply(conn, resp) {
			return
		}
	}
}

func (s *Server) dispatch(connID uint64, req request) response {
	switch req.Op {
	case opRegister:
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return response{OK: false, Error: "register requires name"}
		}
		entry := Entry{Name: name, Port: req.Port, Hidden: req.Hidden}
		if err := s.registry.Register(connID, entry); err != nil {
			return response{OK: false, Error: err.Error()}
		}
		return response{OK: true}

	case opDeregister:
		if err := s.registry.Deregister(connID, strings.TrimSpace(req.Name)); err != nil {
			return response{OK: false, Error: err.Error()}
		}
		return response{OK: true}

	case opLookup:
		entry, ok := s.registry.Lookup(strings.TrimSpace(req.Name))
		if !ok {
			return response{OK: false, Error: fmt.Sprintf("name %q not registered", req.Name)}
		}
		return response{OK: true, Port: entry.Port}

	case opNames:
		return response{OK: true, Entries: s.registry.Names()}

	default:
		return response{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (s *Server) reply(conn net.Conn, resp response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	data = append(data, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	_, err = conn.Write(data)
	return err == nil
}

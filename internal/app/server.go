// Package app wires the engine runtime and HTTP lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/hexstride/internal/api/rest"
	"github.com/louisbranch/hexstride/internal/cutlog"
	"github.com/louisbranch/hexstride/internal/engine"
	"github.com/louisbranch/hexstride/internal/hexgrid"
	ledgersqlite "github.com/louisbranch/hexstride/internal/ledger/sqlite"
	"github.com/louisbranch/hexstride/internal/platform/config"
	"github.com/louisbranch/hexstride/internal/platform/timeouts"
	"github.com/louisbranch/hexstride/internal/session"
	"github.com/louisbranch/hexstride/internal/store"
	"github.com/louisbranch/hexstride/internal/store/memory"
	"github.com/louisbranch/hexstride/internal/territory"
	"github.com/louisbranch/hexstride/internal/trail"
)

// Env is the engine server's environment configuration.
type Env struct {
	Addr           string        `env:"HEXSTRIDE_ADDR" envDefault:":8080"`
	DBPath         string        `env:"HEXSTRIDE_DB_PATH" envDefault:"data/claims.db"`
	GridResolution int           `env:"HEXSTRIDE_GRID_RESOLUTION" envDefault:"9"`
	MinLoopAreaM2  float64       `env:"HEXSTRIDE_MIN_LOOP_AREA_M2" envDefault:"100"`
	MaxTrailPoints int           `env:"HEXSTRIDE_MAX_TRAIL_POINTS" envDefault:"10000"`
	StreamMaxLen   int           `env:"HEXSTRIDE_GPS_STREAM_MAXLEN" envDefault:"1000"`
	SessionTTL     time.Duration `env:"HEXSTRIDE_SESSION_TTL" envDefault:"1h"`
	TrailTTL       time.Duration `env:"HEXSTRIDE_TRAIL_TTL" envDefault:"2h"`
	TerritoryTTL   time.Duration `env:"HEXSTRIDE_TERRITORY_TTL" envDefault:"1h"`
}

// LoadEnv reads the server configuration from the environment.
func LoadEnv() (Env, error) {
	var cfg Env
	if err := config.ParseEnv(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Server hosts the engine HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	claims     *ledgersqlite.Store
}

// New creates a configured engine server listening on cfg.Addr.
func New(cfg Env) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	claims, err := openClaimStore(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	grid, err := hexgrid.New(cfg.GridResolution)
	if err != nil {
		_ = listener.Close()
		_ = claims.Close()
		return nil, fmt.Errorf("new grid: %w", err)
	}

	// Every keyed-store operation is individually time-bounded so a stalled
	// store fails the ingest call instead of pinning it.
	kv := store.WithTimeout(memory.New(), timeouts.StoreOp)
	sessions := session.NewManager(kv, cfg.SessionTTL)
	cache := territory.NewCache(kv, claims, cfg.TerritoryTTL)
	stores := engine.Stores{
		Trails:    trail.NewStore(kv, cfg.TrailTTL),
		Sessions:  sessions,
		Territory: cache,
		Cuts:      cutlog.NewLog(kv),
		KV:        kv,
	}
	eng, err := engine.New(grid, stores, engine.Config{
		MaxTrailPoints: cfg.MaxTrailPoints,
		MinLoopAreaM2:  cfg.MinLoopAreaM2,
		StreamMaxLen:   cfg.StreamMaxLen,
		StreamTTL:      cfg.TrailTTL,
	})
	if err != nil {
		_ = listener.Close()
		_ = claims.Close()
		return nil, fmt.Errorf("new engine: %w", err)
	}

	handler, err := rest.NewHandler(eng, claims, cache, sessions)
	if err != nil {
		_ = listener.Close()
		_ = claims.Close()
		return nil, fmt.Errorf("new handler: %w", err)
	}

	mux := http.NewServeMux()
	rest.RegisterRoutes(mux, handler)

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		claims: claims,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an engine server until context cancellation.
func Run(ctx context.Context, cfg Env) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("engine server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// Close releases engine server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.claims != nil {
		if err := s.claims.Close(); err != nil {
			log.Printf("close claim store: %v", err)
		}
	}
}

func openClaimStore(path string) (*ledgersqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := ledgersqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claim sqlite store: %w", err)
	}
	return store, nil
}

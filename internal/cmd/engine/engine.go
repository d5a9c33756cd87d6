// Package engine parses engine service flags and launches the service.
package engine

import (
	"context"
	"flag"

	"github.com/louisbranch/hexstride/internal/app"
	entrypoint "github.com/louisbranch/hexstride/internal/platform/cmd"
)

// ParseConfig parses environment and flags into the server configuration.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Env, error) {
	cfg, err := app.LoadEnv()
	if err != nil {
		return app.Env{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The engine HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The claim ledger SQLite path")
	fs.IntVar(&cfg.GridResolution, "resolution", cfg.GridResolution, "The hex grid resolution")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return app.Env{}, err
	}
	return cfg, nil
}

// Run starts the engine HTTP API service.
func Run(ctx context.Context, cfg app.Env) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(context.Context) error {
		return app.Run(ctx, cfg)
	})
}

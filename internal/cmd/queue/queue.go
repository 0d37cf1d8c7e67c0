// Package queue parses queue service flags and launches the service.
package queue

import (
	"context"
	"flag"
	"log/slog"
	"os"

	entrypoint "github.com/louisbranch/handraise/internal/platform/cmd"
	server "github.com/louisbranch/handraise/internal/services/queue/app"
)

// Config holds queue command configuration.
type Config struct {
	HTTPAddr          string `env:"HANDRAISE_HTTP_ADDR" envDefault:":8080"`
	HealthAddr        string `env:"HANDRAISE_HEALTH_ADDR" envDefault:":8081"`
	DBPath            string `env:"HANDRAISE_DB_PATH" envDefault:"data/queue.db"`
	FirebaseProjectID string `env:"HANDRAISE_FIREBASE_PROJECT_ID"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The queue HTTP API listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "The queue gRPC health listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The queue sqlite database path")
	fs.StringVar(&cfg.FirebaseProjectID, "firebase-project", cfg.FirebaseProjectID, "The Firebase project for auth and push")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the queue API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceQueue, func(ctx context.Context) error {
		return server.Run(ctx, server.Options{
			HTTPAddr:          cfg.HTTPAddr,
			HealthAddr:        cfg.HealthAddr,
			DBPath:            cfg.DBPath,
			FirebaseProjectID: cfg.FirebaseProjectID,
			Logger:            slog.New(slog.NewTextHandler(os.Stderr, nil)),
		})
	})
}

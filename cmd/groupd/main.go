// Package main implements groupd, a single host that owns a set of groups.
// groupctl coordinates a fleet of groupd processes.
//
// HTTP API:
//
//	POST   /v1/group/        {"groupId": "..."}  201, 409 if present
//	DELETE /v1/group/        {"groupId": "..."}  200, 404 if absent
//	GET    /v1/group/{id}                        200, 404 if absent
//	GET    /health
//	GET    /stats
//	GET    /metrics
//
// Configuration:
//   - GROUPD_LISTEN: listen address (default ":8081")
//   - GROUPD_FAIL_RATE: fraction of group requests answered with 503 (default 0)
//   - GROUPD_RATE_LIMIT: group requests per second before 429s (default 0, unlimited)
//   - GROUPD_LOG_LEVEL: debug, info, warn or error (default info)
//   - GROUPD_LOG_FORMAT: text or json (default text)
//
// Example:
//
//	GROUPD_LISTEN=:8081 ./groupd &
//	GROUPD_LISTEN=:8082 GROUPD_FAIL_RATE=0.3 ./groupd &
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrischmann/envconfig"

	"github.com/dreamware/groupsync/internal/groupserver"
	"github.com/dreamware/groupsync/internal/logging"
	"github.com/dreamware/groupsync/internal/storage"
)

// settings is read from the environment.
type settings struct {
	Listen    string  `envconfig:"GROUPD_LISTEN,default=:8081"`
	LogLevel  string  `envconfig:"GROUPD_LOG_LEVEL,default=info"`
	LogFormat string  `envconfig:"GROUPD_LOG_FORMAT,default=text"`
	FailRate  float64 `envconfig:"GROUPD_FAIL_RATE,default=0"`
	RateLimit float64 `envconfig:"GROUPD_RATE_LIMIT,default=0"`
}

func loadSettings() (settings, error) {
	var cfg settings
	if err := envconfig.Init(&cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return cfg, fmt.Errorf("GROUPD_FAIL_RATE: %v outside [0, 1]", cfg.FailRate)
	}
	if cfg.RateLimit < 0 {
		return cfg, fmt.Errorf("GROUPD_RATE_LIMIT: %v is negative", cfg.RateLimit)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "groupd:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "groupd:", err)
		os.Exit(1)
	}

	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newHandler(cfg, time.Now().UnixNano(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("groupd listening", "addr", cfg.Listen, "fail_rate", cfg.FailRate, "rate_limit", cfg.RateLimit)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	logger.Info("groupd stopped")
}

// newHandler wires a fresh in-memory host. Fault injection is seeded with
// seed.
func newHandler(cfg settings, seed int64, logger *slog.Logger) http.Handler {
	srv := groupserver.New(storage.NewMemoryStore(), logger)
	if cfg.FailRate > 0 {
		srv.SetFaultInjector(groupserver.RandomFaults(cfg.FailRate, seed))
	}
	if cfg.RateLimit > 0 {
		srv.SetRateLimit(cfg.RateLimit, int(cfg.RateLimit)+1)
	}
	return srv.Handler()
}

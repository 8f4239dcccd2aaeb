package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/luismateoh/Aldebaran-sub001/internal/app"
	"github.com/luismateoh/Aldebaran-sub001/internal/config"
	"github.com/luismateoh/Aldebaran-sub001/internal/log"
)

const file = "config.json"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	logger := log.NewLogger()
	defer logger.Sync()

	cfg := config.NewConfig()
	if err := cfg.Read(file); err != nil {
		logger.Fatalw("read config", "error", err)
	}

	if err := initSentry(&cfg.Sentry, "v1"); err != nil {
		logger.Fatalw("sentry init", "error", err)
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("app init", "error", err)
	}

	if err := a.Run(ctx); err != nil {
		logger.Fatalw("app run", "error", err)
	}
}

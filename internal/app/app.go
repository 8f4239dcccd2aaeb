package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luismateoh/Aldebaran-sub001/cmd/migrate"
	"github.com/luismateoh/Aldebaran-sub001/internal/cache"
	"github.com/luismateoh/Aldebaran-sub001/internal/config"
	"github.com/luismateoh/Aldebaran-sub001/internal/fetcher"
	"github.com/luismateoh/Aldebaran-sub001/internal/log"
	"github.com/luismateoh/Aldebaran-sub001/internal/metrics"
	"github.com/luismateoh/Aldebaran-sub001/internal/processor"
	"github.com/luismateoh/Aldebaran-sub001/internal/queue"
	"github.com/luismateoh/Aldebaran-sub001/internal/r2"
	"github.com/luismateoh/Aldebaran-sub001/internal/redisholder"
	"github.com/luismateoh/Aldebaran-sub001/internal/repository/storage"
	"github.com/luismateoh/Aldebaran-sub001/internal/transport/handler"
	"github.com/luismateoh/Aldebaran-sub001/internal/transport/router"
)

type App struct {
	HttpServer *http.Server
	Queue      *queue.Queue
	Metrics    *metrics.QueueMetrics

	logger *log.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations)
	if err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisholder.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	assetCache := cache.NewCache("eventmedia:assets", holder)

	r2Storage, err := r2.NewStorage(&cfg.R2, assetCache)
	if err != nil {
		return nil, err
	}

	f := fetcher.New(cfg.Fetch)
	t := processor.NewTranscoder(cfg.Image)
	m := metrics.NewQueueMetrics()

	q := queue.New(cfg.Queue, r2Storage, f, t, repo, m, logger)

	h := handler.New(q, repo, repo, m, cfg, logger)
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		Queue:      q,
		Metrics:    m,
		logger:     logger,
	}, nil
}

// Run starts the HTTP server, the drain worker and the metrics collector
// and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.Queue.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.Metrics.Collect(ctx, a.Queue)
		return nil
	})

	g.Go(func() error {
		a.logger.Infow("starting server", "addr", a.HttpServer.Addr)
		err := a.HttpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.HttpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

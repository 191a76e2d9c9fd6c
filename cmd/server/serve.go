package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/wordfill-backend/internal/challenge"
	"github.com/DoyleJ11/wordfill-backend/internal/config"
	"github.com/DoyleJ11/wordfill-backend/internal/httpapi"
	"github.com/DoyleJ11/wordfill-backend/internal/hub"
	"github.com/DoyleJ11/wordfill-backend/internal/session"
	"github.com/DoyleJ11/wordfill-backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) (err error) {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	repo, closeRepo, err := openRepository(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeRepo()) }()

	sessions := session.NewService(st, cfg.SessionTTL)
	h := hub.NewHub(ctx, sessions, log)
	defer h.Shutdown()

	challenges := challenge.NewService(repo, h, sessions, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, challenges, sessions, httpapi.Options{Log: log, AllowedOrigins: cfg.AllowedOrigins}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// openStore picks Redis when configured, otherwise an in-process store.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, func() error, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, session state is in memory and not shared between instances")
		return store.NewMemoryStore(cfg.SessionTTL), func() error { return nil }, nil
	}
	rs, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("session store: redis")
	return rs, rs.Close, nil
}

func openRepository(cfg config.Config, log *zap.Logger) (challenge.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, challenges are kept in memory")
		return challenge.NewMemoryRepository(), func() error { return nil }, nil
	}
	db, err := challenge.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := challenge.Migrate(db); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	log.Info("challenge repository: postgres")
	return challenge.NewGormRepository(db), sqlDB.Close, nil
}

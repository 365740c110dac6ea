package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/userdirectory/internal/app"
	"github.com/odyssey-erp/userdirectory/internal/i18n"
	"github.com/odyssey-erp/userdirectory/internal/observability"
	"github.com/odyssey-erp/userdirectory/internal/platform/cache"
	"github.com/odyssey-erp/userdirectory/internal/platform/db"
	"github.com/odyssey-erp/userdirectory/internal/shared"
	"github.com/odyssey-erp/userdirectory/internal/useractions"
	"github.com/odyssey-erp/userdirectory/internal/userlist"
	"github.com/odyssey-erp/userdirectory/internal/userstate"
	"github.com/odyssey-erp/userdirectory/internal/users"
	"github.com/odyssey-erp/userdirectory/internal/view"
	"github.com/odyssey-erp/userdirectory/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("userdirectory", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "userdir_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	catalog, err := i18n.Load(cfg.DefaultLocale)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	usersService := users.NewService(users.NewRepository(dbpool), users.NewCache(redisClient, cfg.UserCacheTTL))
	store := userstate.NewRedisStore(redisClient, cfg.UserListStateTTL)
	creator := useractions.NewCreator(usersService, store, logger, metrics)

	var jobHandler *jobs.Handler
	if cfg.UserListAsyncFetch {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		queue := asynq.NewClient(redisOpts)
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		creator.SetRunner(jobs.NewDispatcher(queue, logger))
		jobHandler = jobs.NewHandler(inspector, logger)
		logger.Info("user fetches run on the job queue")
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		UserListHandler: userlist.NewHandler(logger, store, creator, templates, csrfManager, catalog),
		UsersAPIHandler: users.NewHandler(logger, usersService),
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

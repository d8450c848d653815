package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/config"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/observability"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/reset"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/router"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task"
	taskrepo "github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/repo"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user"
	userrepo "github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/repo"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/database"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

func main() {
	// .env is loaded best-effort inside config.Load
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(utilities.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped with error", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(cfg *config.Config, sugar *zap.SugaredLogger) error {
	sugar.Infow("starting task manager", "addr", cfg.HTTPAddr, "db_driver", cfg.DBDriver)

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	if cfg.DBDriver == database.DriverPostgres {
		if err := database.ApplyMigrations(cfg.DatabaseURL, sugar); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	// sqlite schema is ensured by Open
	db, err := database.Open(database.Config{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DatabaseURL,
		SQLitePath:     cfg.SQLitePath,
		MaxConns:       cfg.DatabaseMaxConns,
		TimeZone:       cfg.DatabaseTimeZone,
		ClientEncoding: cfg.DatabaseClientEncoding,
	})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if err := metrics.RegisterDBStats(db.DB, cfg.DBDriver); err != nil {
		return fmt.Errorf("register db metrics: %w", err)
	}

	issuer, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL())
	if err != nil {
		return err
	}
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}

	userSvc := user.NewUserService(user.Deps{
		Users:    userrepo.NewUserRepo(db),
		Hasher:   hasher,
		Tokens:   issuer,
		Resets:   reset.NewManager(userrepo.NewResetRepo(db), hasher),
		IDs:      ids,
		ResetTTL: cfg.ResetTokenTTL(),
	})
	taskSvc := task.NewService(taskrepo.NewTaskRepo(db), ids)

	handler := router.New(router.Deps{
		Logger:        sugar,
		Metrics:       metrics,
		Authenticator: auth.NewAuthenticator(issuer, sugar),
		Users:         user.NewHandler(userSvc, sugar, metrics),
		Tasks:         task.NewHandler(taskSvc, sugar),
	})
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	return nil
}

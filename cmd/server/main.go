package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pomodoro/focusd/internal/config"
	"pomodoro/focusd/internal/db"
	"pomodoro/focusd/internal/handler"
	"pomodoro/focusd/internal/repository"
	"pomodoro/focusd/internal/router"
	"pomodoro/focusd/internal/service"
	"pomodoro/focusd/internal/timer"
	"pomodoro/focusd/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database, migrationFiles(cfg)); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	userRepo := repository.NewUserRepository(database)
	taskRepo := repository.NewTaskRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	prefsRepo := repository.NewPreferenceRepository(database)

	timers := timer.NewManager(cfg.Cycle, prefsRepo, timer.Options{TickInterval: cfg.TickInterval})

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	pomodoroService := service.NewPomodoroService(timers, taskRepo, sessionRepo, cfg.AutoAdvance)
	taskService := service.NewTaskService(taskRepo, timers)

	engine := router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewPomodoroHandler(pomodoroService),
		handler.NewTaskHandler(taskService),
		cfg.CORSOrigins,
		log.With().Str("component", "http").Logger(),
	)

	// Request contexts derive from requestCtx; cancelling it ends open
	// event streams so Shutdown does not wait on them.
	requestCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return requestCtx },
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Str("cycle", cfg.Cycle.String()).
			Dur("tick", cfg.TickInterval).
			Bool("autoAdvance", cfg.AutoAdvance).
			Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("shutting down")

		cancelRequests()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown incomplete")
			_ = server.Close()
		}
		return timers.Close(context.Background())
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		database.Close()
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func migrationFiles(cfg config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.Files
}

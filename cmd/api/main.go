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

	"autodialer/internal/ai"
	"autodialer/internal/calls"
	"autodialer/internal/config"
	"autodialer/internal/dialer"
	"autodialer/internal/httpapi"
	"autodialer/internal/telephony"
	"autodialer/pkg/logger"
	"autodialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	provider, err := telephony.NewTwilioProvider(cfg.Twilio)
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	parser, err := ai.NewParser(cfg.OpenAI)
	if err != nil {
		log.Error("ai parser init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := calls.NewPostgresStore(db)

	// A previous process may have died mid-call; those records can never
	// resolve on their own.
	if n, err := store.ResetStale(rootCtx); err != nil {
		log.Error("stale call sweep failed", "err", err)
		os.Exit(1)
	} else if n > 0 {
		log.Warn("stale in-progress calls marked failed", "count", n)
	}

	sequencer := dialer.NewSequencer(store, provider, cfg.Dialer.PacingInterval)
	runner := dialer.NewRunner(sequencer, rdb, log)

	h := httpapi.Handlers{
		Store:          store,
		Builder:        dialer.NewBuilder(store),
		Dispatcher:     runner,
		Parser:         parser,
		MaxBatchSize:   cfg.Dialer.MaxBatchSize,
		DefaultMessage: cfg.Dialer.DefaultMessage,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// In-flight batches get a bounded window to finish the current call.
	// Whatever is still queued after that survives the restart sweep.
	if err := runner.Drain(shutdownCtx); err != nil {
		log.Warn("call batches still running at shutdown", "err", err)
	}
}

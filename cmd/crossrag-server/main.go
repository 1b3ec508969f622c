package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xhad/crossrag/internal/app"
	cfgPkg "github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/logger"
	"github.com/xhad/crossrag/server"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&envFile, "env", ".env", "Path to .env file")
	flag.Parse()

	if err := run(configPath, envFile); err != nil {
		logrus.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := cfgPkg.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.New("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s := server.New(a.Orchestrator, a.Status, server.Config{
		RateLimit:    cfg.Server.RateLimit,
		Burst:        cfg.Server.Burst,
		QueryTimeout: cfg.Server.QueryTimeout,
		Streaming:    cfg.UI.Streaming,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.Server.Address).Info("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/xhad/crossrag/internal/app"
	"github.com/xhad/crossrag/internal/models"
	cfgPkg "github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/logger"
	"github.com/xhad/crossrag/pkg/query"
)

type flags struct {
	configPath string
	envFile    string
	mode       string
	method     string
	logLevel   string
	noSpinner  bool
	query      string
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.envFile, "env", ".env", "Path to .env file")
	flag.StringVar(&f.mode, "mode", "dual", "Query mode: dual, documents, communications, contradiction")
	flag.StringVar(&f.method, "method", "", "Graph search method: global or local")
	flag.StringVar(&f.logLevel, "log-level", "warn", "Log level")
	flag.BoolVar(&f.noSpinner, "no-spinner", false, "Print progress lines instead of a spinner")
	flag.StringVar(&f.query, "q", "", "Run a single query and exit")
	flag.Parse()
	return f
}

func run(f flags) error {
	if err := cfgPkg.LoadEnvFile(f.envFile); err != nil {
		return err
	}
	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Logs go to stderr so they do not interleave with results.
	logger.InitWithOutput(f.logLevel, "text", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s := newSession(a.Orchestrator, a.Status, color.Output)
	s.spinner = !f.noSpinner
	if f.method != "" {
		s.request.Method = f.method
	}
	mode, err := models.ParseMode(f.mode)
	if err != nil {
		return err
	}
	s.request.Mode = mode

	if q := strings.TrimSpace(f.query); q != "" {
		req := s.request
		req.Query = q
		return s.run(ctx, func(obs query.Observer) (*query.Response, error) {
			return a.Orchestrator.Run(ctx, req, obs)
		})
	}
	return s.loop(ctx, os.Stdin)
}

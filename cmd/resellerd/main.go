package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"resellerhub/internal/app"
	"resellerhub/internal/config"
	"resellerhub/internal/observability"
	"resellerhub/internal/store"
	"resellerhub/internal/subscription"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "serve":
		runServe(ctx, mustConfig())
	case "migrate":
		runMigrate(ctx, mustConfig())
	case "evaluate":
		if err := runEvaluate(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			log.Fatalf("evaluate: %v", err)
		}
	default:
		usage()
	}
}

func mustConfig() config.Config {
	cfg, err := config.Load(os.Getenv("RH_CONFIG"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	return cfg
}

func mustLogger(cfg config.Config) *zap.Logger {
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Dev.Mode)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	return logger
}

func runServe(ctx context.Context, cfg config.Config) {
	logger := mustLogger(cfg)
	defer func() { _ = logger.Sync() }()

	appInstance, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("app init error", zap.Error(err))
	}
	defer appInstance.Close()

	if err := appInstance.Serve(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

func runMigrate(ctx context.Context, cfg config.Config) {
	logger := mustLogger(cfg)
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("store error", zap.Error(err))
	}
	defer st.Close()
	if err := store.Migrate(ctx, st.DB()); err != nil {
		logger.Error("migration error", zap.Error(err))
		return
	}
	logger.Info("migrations applied")
}

// runEvaluate classifies a wire record read from a file or stdin.
func runEvaluate(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	nowFlag := fs.String("now", "", "evaluation instant (RFC 3339), defaults to the current time")
	tzFlag := fs.String("tz", "UTC", "timezone for calendar-day arithmetic")
	fileFlag := fs.String("file", "", "path to a subscription JSON record, stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc, err := time.LoadLocation(*tzFlag)
	if err != nil {
		return err
	}
	now := time.Now()
	if *nowFlag != "" {
		if now, err = time.Parse(time.RFC3339, *nowFlag); err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
	}

	in := stdin
	if *fileFlag != "" {
		f, err := os.Open(*fileFlag)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	var raw *subscription.Raw
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && string(trimmed) != "null" {
		raw = &subscription.Raw{}
		if err := json.Unmarshal(trimmed, raw); err != nil {
			// Unreadable input evaluates as absent, same as the guards.
			raw = nil
		}
	}

	ev := subscription.EvaluateRaw(raw, now, loc)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"evaluation": ev,
		"notice":     subscription.Banner(ev),
	})
}

func usage() {
	fmt.Println("Usage: resellerd <serve|migrate|evaluate [-now RFC3339] [-tz zone] [-file path]>")
}

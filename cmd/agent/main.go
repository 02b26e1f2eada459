package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/brandonline/filebridge/internal/agent"
	"github.com/brandonline/filebridge/internal/config"
	"github.com/brandonline/filebridge/internal/logging"
	"github.com/brandonline/filebridge/internal/sandbox"
)

func main() {
	cfg := config.LoadAgent()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Secret == "" {
		log.Fatal("BRIDGE_SECRET must be set")
	}
	if _, err := os.Stat(cfg.FilesRoot); err != nil {
		log.Fatal("files root not accessible", zap.String("root", cfg.FilesRoot), zap.Error(err))
	}

	box := sandbox.New(cfg.FilesRoot, cfg.TextLimit, cfg.BinaryLimit)
	log.Info("starting agent",
		zap.String("server", cfg.ServerURL),
		zap.String("root", box.Root()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := agent.New(cfg.ServerURL, cfg.Secret, box, cfg.ReconnectDelay, log)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("agent stopped", zap.Error(err))
	}
	log.Info("stopped")
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"patronledger/config"
	"patronledger/core"
	"patronledger/observability/logging"
	"patronledger/rpc"
	"patronledger/state"
	"patronledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "path", *configFile, "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("patrond", cfg.Env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dataDir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	mgr := state.NewManager(db)
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	node := core.NewNode(mgr, cfg)
	if err := node.Bootstrap(); err != nil {
		logger.Error("failed to bootstrap ledger", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(node)
	if err := server.Start(ctx, cfg.ListenAddress); err != nil {
		logger.Error("rpc server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("patrond shut down")
}

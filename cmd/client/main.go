package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/dentkeeper/internal/client/api"
	"github.com/iudanet/dentkeeper/internal/client/auth"
	"github.com/iudanet/dentkeeper/internal/client/cli"
	"github.com/iudanet/dentkeeper/internal/client/connectivity"
	"github.com/iudanet/dentkeeper/internal/client/data"
	"github.com/iudanet/dentkeeper/internal/client/iocli"
	"github.com/iudanet/dentkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/dentkeeper/internal/client/sync"
	"github.com/iudanet/dentkeeper/internal/client/worker"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	probeInterval  = 30 * time.Second
	refreshMinAge  = 5 * time.Minute
	workerInterval = time.Minute
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "dentkeeper-client.db", "Path to local database")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]

	// watch работает до Ctrl+C, остальные команды одноразовые
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	apiClient := api.NewClient(*serverURL)
	monitor := connectivity.NewMonitor(apiClient, boltStorage, probeInterval, refreshMinAge, logger)

	authService := auth.NewService(apiClient, boltStorage)
	dataService := data.NewService(apiClient, boltStorage, boltStorage, monitor.Online, logger)
	syncService := sync.NewService(apiClient, boltStorage, boltStorage, boltStorage, monitor.Online, logger)
	syncWorker := worker.New(apiClient, boltStorage, boltStorage, monitor.Online, workerInterval, logger)

	app := cli.New(iocli.NewStdio(), apiClient, authService, dataService, syncService, monitor, syncWorker)

	if err := app.Run(ctx, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("DentKeeper Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/strogmv/notifyd/internal/app"
	"github.com/strogmv/notifyd/internal/config"
	"github.com/strogmv/notifyd/internal/pkg/logger"
	"github.com/strogmv/notifyd/internal/pkg/tracing"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch cmd := os.Args[1]; cmd {
	case "serve":
		os.Exit(runServe())
	case "publish":
		os.Exit(runPublish(os.Args[2:]))
	case "token":
		os.Exit(runToken(os.Args[2:]))
	case "version":
		fmt.Printf("notifyd version %s\n", Version)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("notifyd v%s - notification delivery service\n", Version)
	fmt.Println("\nUsage:")
	fmt.Println("  notifyd serve                 Consume event streams and serve the push API")
	fmt.Println("  notifyd publish <kind> [...]  Append a sample event (user|session|assessment|proctoring)")
	fmt.Println("  notifyd token -user ID        Issue an access token for local testing")
	fmt.Println("  notifyd version               Print the version")
}

// runServe returns the process exit code so deferred cleanup runs before
// main exits.
func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	c, err := app.NewContainer(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("error", err))
		return 1
	}
	defer c.Close()

	log.Info("notifyd starting", slog.String("version", Version), slog.Any("streams", cfg.InboundStreams()))
	if err := c.Run(ctx); err != nil {
		log.Error("notifyd stopped with error", slog.Any("error", err))
		return 1
	}
	log.Info("notifyd stopped")
	return 0
}

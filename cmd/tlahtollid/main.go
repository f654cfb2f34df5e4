// Tlahtollid is the gateway daemon for the tlahtolli assistant: it fronts
// the backend service with a same-origin proxy that forwards multipart
// requests by logical endpoint name and content-negotiates the responses.
//
// Usage:
//
//	tlahtollid [flags]
//	tlahtollid --config /path/to/tlahtolli.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tlahtolli/internal/config"
	"tlahtolli/internal/health"
	"tlahtolli/internal/proxy"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/tlahtolli.local.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tlahtollid %s\n", version)
		os.Exit(0)
	}

	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("tlahtollid starting", "version", version)

	// Root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	healthServer := health.New(cfg.Server.HealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	gateway := proxy.New(cfg.Server.Port, cfg.Backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gateway.ListenAndServe(ctx)
	}()

	healthServer.SetReady(true)
	slog.Info("tlahtollid ready",
		"port", cfg.Server.Port,
		"backend", cfg.Backend.BaseURL,
		"health_port", cfg.Server.HealthPort)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining...")
		if err := gateway.Close(); err != nil {
			slog.Error("gateway close error", "error", err)
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("tlahtollid stopped")
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/canvasagent/internal/dependency"
)

var (
	servePort    int
	serveVerbose bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the canvasagent HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides server.port)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose logging")
}

func runServe(_ *cobra.Command, _ []string) error {
	if serveVerbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := dependency.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	fmt.Printf("%s Starting canvasagent on %s...\n", logo, cfg.Server.Addr())
	if !cfg.Remote.Configured() {
		fmt.Println("Warning: remote tool service not configured; chat will report it unavailable")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return container.Server().Run(gctx) })
	if r := container.Refresher(); r != nil {
		g.Go(func() error { return r.Start(gctx) })
	}
	if cfg.Remote.Configured() {
		// Warm the tool registry; failures are retried on the first request.
		g.Go(func() error {
			tools, err := container.Studio().Tools(gctx)
			if err != nil {
				slog.Warn("serve: initial tool discovery failed", "err", err)
				return nil
			}
			fmt.Printf("✓ %d remote tools available\n", len(tools))
			return nil
		})
	}

	fmt.Printf("%s Server running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

// Command callrelayd runs the call relay HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xraph/callrelay/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CALLRELAY_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "callrelayd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := server.NewLogger(os.Stderr, cfg)
	srv, err := server.New(ctx, cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

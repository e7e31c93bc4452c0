// Command zap-worker dials the socket its supervisor passed via
// ZAP_SOCKET, serves registered exports, and exits when the connection
// drops or it is signaled (spec.md §4.4/§6). Process isolation means
// every export this binary can serve comes in purely through blank
// imports of export-registering packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/zapsplice/zap/exports"
	"github.com/zapsplice/zap/logging"
	"github.com/zapsplice/zap/workerrt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "zap-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	sock := os.Getenv("ZAP_SOCKET")
	if sock == "" {
		return fmt.Errorf("ZAP_SOCKET is not set")
	}

	logger := logging.New(logging.Config{Component: "worker", Level: slog.LevelInfo})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sock, err)
	}

	w, err := workerrt.Connect(ctx, nc, workerrt.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	defer w.Close()

	return w.Run(ctx)
}

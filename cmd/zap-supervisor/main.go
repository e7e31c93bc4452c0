// Command zap-supervisor launches and supervises one worker process,
// exposing a host-facing socket for dispatching Invoke calls into it
// (spec.md §4.5/§6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/zapsplice/zap/dispatcher"
	"github.com/zapsplice/zap/logging"
	"github.com/zapsplice/zap/supervisor"
	"github.com/zapsplice/zap/watchdog"
	"github.com/zapsplice/zap/zapcfg"
)

func main() {
	cmd := &cli.Command{
		Name:  "zap-supervisor",
		Usage: "supervise a zap worker process and serve host connections",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Required: true, Usage: "host-facing socket path"},
			&cli.StringFlag{Name: "worker", Required: true, Usage: "worker binary path"},
			&cli.StringFlag{Name: "watch", Usage: "comma-separated paths to watch for hot reload"},
			&cli.IntFlag{Name: "max-concurrency", Value: 1024, Usage: "global in-flight invoke limit"},
			&cli.IntFlag{Name: "timeout", Value: 30, Usage: "default per-call timeout, seconds"},
			&cli.StringFlag{Name: "log-file", Usage: "optional rotated log file path"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "zap-supervisor:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := zapcfg.DefaultSupervisorConfig()
	cfg.HostSocket = cmd.String("socket")
	cfg.WorkerPath = cmd.String("worker")
	cfg.MaxConcurrency = int(cmd.Int("max-concurrency"))
	cfg.Timeout = time.Duration(cmd.Int("timeout")) * time.Second
	if watch := cmd.String("watch"); watch != "" {
		cfg.WatchPaths = strings.Split(watch, ",")
	}
	cfg.WorkerSocket = cfg.HostSocket + ".worker"

	logger := logging.New(logging.Config{
		FilePath:  cmd.String("log-file"),
		Component: "supervisor",
		Level:     slog.LevelInfo,
	})

	notifier := watchdog.New()
	sup := supervisor.New(supervisor.Config{
		WorkerPath:      cfg.WorkerPath,
		SocketPath:      cfg.WorkerSocket,
		MaxConcurrency:  cfg.MaxConcurrency,
		DefaultDeadline: cfg.Timeout,
	}, supervisor.WithLogger(logger), supervisor.WithWatchdog(notifier))

	if notifier != nil {
		stopPinger := notifier.StartPinger(ctx)
		defer stopPinger()
	}

	if len(cfg.WatchPaths) > 0 {
		go func() {
			for _, p := range cfg.WatchPaths {
				go func(path string) {
					if err := supervisor.WatchBinary(ctx, logger, path, sup.RequestReload); err != nil && ctx.Err() == nil {
						logger.Warn("binary watch stopped", slog.Any("err", err))
					}
				}(p)
			}
		}()
	}

	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()

	ln, err := net.Listen("unix", cfg.HostSocket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HostSocket, err)
	}
	defer ln.Close()
	defer os.Remove(cfg.HostSocket)

	// serverID identifies this supervisor process across restarts in
	// HandshakeAck, letting a host client notice it reconnected to a
	// different process instance (e.g. after a crash-restart cycle).
	serverID := [16]byte(uuid.New())

	go serveHostConnections(ctx, ln, sup, logger, serverID)

	return <-supDone
}

func serveHostConnections(ctx context.Context, ln net.Listener, sup *supervisor.Supervisor, logger *slog.Logger, serverID [16]byte) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", slog.Any("err", err))
			continue
		}
		go handleHostConnection(ctx, nc, sup, logger, serverID)
	}
}

func handleHostConnection(ctx context.Context, nc net.Conn, sup *supervisor.Supervisor, logger *slog.Logger, serverID [16]byte) {
	r := sup.Router()
	if r == nil {
		nc.Close()
		return
	}
	d, err := dispatcher.Accept(ctx, nc, r, dispatcher.WithLogger(logger), dispatcher.WithServerID(serverID))
	if err != nil {
		logger.Warn("host handshake failed", slog.Any("err", err))
		nc.Close()
		return
	}
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Debug("host connection closed", slog.Any("err", err))
	}
}

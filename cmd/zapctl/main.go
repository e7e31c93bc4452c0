// Command zapctl is an ambient operational tool: it dials a running
// supervisor's host-facing socket the same way any host client would and
// renders what the existing wire protocol already exposes — connection
// health and the live export list — with styled terminal output. It does
// not add a new wire message for status, since spec.md's message set is
// a fixed, closed enumeration; "status" here means "what ListExports and
// a successful handshake already tell us".
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/zapsplice/zap/wire"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

func main() {
	cmd := &cli.Command{
		Name:  "zapctl",
		Usage: "inspect a running zap supervisor",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "show connection health and registered exports",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "socket", Required: true, Usage: "host-facing socket path"},
				},
				Action: statusAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "zapctl:", err)
		os.Exit(1)
	}
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	sock := cmd.String("socket")
	nc, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", sock, err)
	}
	defer nc.Close()

	conn := wire.NewConn(nc, 0)
	if err := conn.Send(ctx, wire.Handshake{ProtocolVersion: 1, Role: wire.RoleHost}); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	msg, err := conn.Recv()
	if err != nil {
		return fmt.Errorf("recv handshake ack: %w", err)
	}
	ack, ok := msg.(wire.HandshakeAck)
	if !ok {
		return fmt.Errorf("unexpected message during handshake: %T", msg)
	}

	fmt.Println(headerStyle.Render("zap supervisor"))
	fmt.Println(okStyle.Render(fmt.Sprintf("connected, %d export(s) known at handshake", ack.ExportCount)))

	if err := conn.Send(ctx, wire.ListExports{}); err != nil {
		return fmt.Errorf("send list_exports: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := conn.Recv()
		if err != nil {
			return fmt.Errorf("recv list_exports result: %w", err)
		}
		result, ok := msg.(wire.ListExportsResult)
		if !ok {
			continue
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("exports (%d):", len(result.Exports))))
		for _, e := range result.Exports {
			flags := ""
			if e.IsAsync {
				flags += " async"
			}
			if e.IsStreaming {
				flags += " streaming"
			}
			fmt.Println("  " + nameStyle.Render(e.Name) + flags)
		}
		return nil
	}
	return fmt.Errorf("timed out waiting for list_exports result")
}

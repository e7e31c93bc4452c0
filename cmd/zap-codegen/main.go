// Command zap-codegen walks a Go project tree for //zap:export functions
// and //zap:type structs and emits TypeScript client bindings
// (spec.md §4.8/§6).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/zapsplice/zap/codegen"
)

func main() {
	cmd := &cli.Command{
		Name:  "zap-codegen",
		Usage: "generate a TypeScript client from //zap:export annotations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project-dir", Value: ".", Usage: "project source tree to walk"},
			&cli.StringFlag{Name: "output-dir", Value: "./src/api", Usage: "directory to write generated files into"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return codegen.Generate(codegen.Options{
				ProjectDir: cmd.String("project-dir"),
				OutputDir:  cmd.String("output-dir"),
			})
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "zap-codegen:", err)
		os.Exit(1)
	}
}

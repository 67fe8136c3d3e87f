package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func newApp() *cli.App {
	return &cli.App{
		Name:     "symreach",
		Usage:    "Find dead code from a workspace-wide symbol dependency graph",
		Version:  version,
		Metadata: make(map[string]interface{}),
		Description: `symreach asks a symbol provider (the built-in tree-sitter indexer or any
language server) for every symbol in a workspace and its references, builds a
dependency graph, and reports the symbols no entry point can reach.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"SYMREACH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon, yaml",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: trace, debug, info, warn, error, off",
				EnvVars: []string{"SYMREACH_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the on-disk report cache",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: setup,
		// main reports errors and picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			deadcodeCmd(),
			graphCmd(),
			watchCmd(),
			configCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		if err.Error() != "" {
			color.Red("Error: %v", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps command errors to process exit codes.
func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// usageError reports invalid flags with exit code 2.
func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), 2)
}

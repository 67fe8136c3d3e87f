package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/symreach/internal/progress"
	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

// analysisFlags are shared by commands that build a graph.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Maximum concurrent provider queries",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for each provider query",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Do not draw a progress bar",
		},
	}
}

func deadcodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "deadcode",
		Aliases:   []string{"dc"},
		Usage:     "Report symbols no entry point can reach",
		ArgsUsage: "[path]",
		Flags: append(analysisFlags(),
			&cli.StringSliceFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Only report these symbol kinds (function, method, class, ...)",
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Aliases: []string{"e"},
				Usage:   "Leave symbols in files matching these globs out of the report",
			},
			&cli.BoolFlag{
				Name:  "fail-on-dead",
				Usage: "Exit with status 1 when dead symbols are found",
			},
		),
		Action: runDeadCode,
	}
}

func runDeadCode(c *cli.Context) error {
	cfg := getConfig(c)
	logger := getLogger(c)

	kinds := c.StringSlice("kind")
	if len(kinds) == 0 {
		kinds = cfg.Analysis.Kinds
	}
	if err := validateKinds(kinds); err != nil {
		return err
	}

	root, err := resolveRoot(getPath(c))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	sess, err := openProvider(ctx, cfg, root, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	engine, err := newEngine(c, cfg, root, logger)
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if !c.Bool("no-progress") && isTerminal(os.Stderr) {
		bar = progress.New(os.Stderr)
		ctx = analyzer.WithTracker(ctx, analyzer.NewTracker(bar.Update))
	}

	rep, err := engine.Analyze(ctx, sess.provider, root, analyzer.Config{
		Kinds:   kinds,
		Exclude: c.StringSlice("exclude"),
	})
	if bar != nil {
		if err != nil {
			bar.Fail(err)
		} else {
			bar.Finish()
		}
	}
	if err != nil {
		if analyzer.IsCancelled(err) {
			color.Yellow("Analysis cancelled")
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(rep); err != nil {
		return err
	}

	if c.Bool("fail-on-dead") && len(rep.DeadSymbols) > 0 {
		return cli.Exit(fmt.Sprintf("%d dead symbols found", len(rep.DeadSymbols)), 1)
	}
	return nil
}

// validateKinds rejects kind names the graph never produces.
func validateKinds(kinds []string) error {
	known := make(map[string]bool)
	for _, k := range depgraph.AllKinds() {
		known[string(k)] = true
	}
	for _, k := range kinds {
		if !known[k] {
			return usageError("unknown symbol kind %q", k)
		}
	}
	return nil
}

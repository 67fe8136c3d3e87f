package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/symreach/internal/scanner"
	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch for file changes and re-run dead code analysis",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before re-analyzing",
			},
			&cli.StringSliceFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Only report these symbol kinds",
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Aliases: []string{"e"},
				Usage:   "Leave symbols in files matching these globs out of the report",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum concurrent provider queries",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for each provider query",
			},
		},
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	cfg := getConfig(c)
	logger := getLogger(c)

	kinds := c.StringSlice("kind")
	if len(kinds) == 0 {
		kinds = cfg.Analysis.Kinds
	}
	if err := validateKinds(kinds); err != nil {
		return err
	}
	acfg := analyzer.Config{Kinds: kinds, Exclude: c.StringSlice("exclude")}

	root, err := resolveRoot(getPath(c))
	if err != nil {
		return err
	}

	// Handle Ctrl+C
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nStopping watch...")
			cancel()
		case <-ctx.Done():
		}
	}()

	sess, err := openProvider(ctx, cfg, root, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	engine, err := newEngine(c, cfg, root, logger)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	analyze := func(ctx context.Context) {
		rep, err := engine.Analyze(ctx, sess.provider, root, acfg)
		if err != nil {
			if !analyzer.IsCancelled(err) {
				formatter.Error("Analysis failed: %v", err)
			}
			return
		}
		if err := formatter.Output(rep); err != nil {
			formatter.Error("Output failed: %v", err)
		}
	}

	w, err := watch.New(root, scanner.NewScanner(cfg),
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithLogger(logger.With().Str("component", "watch").Logger()),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Stop()

	w.OnChange(func(ctx context.Context, changed []string) {
		formatter.Info("%s: %d file(s) changed, re-analyzing", time.Now().Format(time.TimeOnly), len(changed))
		if sess.index != nil {
			sess.index.Invalidate()
		}
		engine.Invalidate(root)
		analyze(ctx)
	})

	analyze(ctx)
	formatter.Success("Watching %s for changes (Ctrl+C to stop)", root)

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/symreach/internal/cache"
	"github.com/panbanda/symreach/internal/logging"
	"github.com/panbanda/symreach/internal/output"
	"github.com/panbanda/symreach/internal/scanner"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/deadcode"
	"github.com/panbanda/symreach/pkg/config"
	"github.com/panbanda/symreach/pkg/provider"
	"github.com/panbanda/symreach/pkg/provider/lsp"
	"github.com/panbanda/symreach/pkg/provider/treesitter"
)

// Metadata keys set by setup.
const (
	metaConfig = "config"
	metaSource = "configSource"
	metaLogger = "logger"
)

// setup loads the configuration and builds the logger before any command
// runs. The config subcommands tolerate a broken file so they can report it.
func setup(c *cli.Context) error {
	if c.Bool("no-color") {
		color.NoColor = true
	}

	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	res, err := config.LoadConfig(opts...)
	if err != nil {
		if c.Args().First() == "config" {
			res = &config.LoadResult{Config: config.DefaultConfig()}
		} else {
			return err
		}
	}

	cfg := res.Config
	level := cfg.Log.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(level),
		Output: os.Stderr,
		Pretty: cfg.Log.Pretty || isTerminal(os.Stderr),
	})

	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaSource] = res.Source
	c.App.Metadata[metaLogger] = logger
	return nil
}

// getConfig returns the configuration loaded by setup, or the defaults when
// setup did not run.
func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func getLogger(c *cli.Context) zerolog.Logger {
	if l, ok := c.App.Metadata[metaLogger].(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}

// getPath returns the workspace argument, defaulting to ".".
func getPath(c *cli.Context) string {
	if c.NArg() == 0 {
		return "."
	}
	return c.Args().First()
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newFormatter builds the output formatter from global flags, falling back
// to the configured format. Color is used only on a terminal.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	format := c.String("format")
	if format == "" {
		format = cfg.Output.Format
	}
	out := c.String("output")
	colored := cfg.Output.Color && !c.Bool("no-color") && out == "" && isTerminal(os.Stdout)
	return output.NewFormatter(output.ParseFormat(format), out, colored)
}

// session is an open provider for one workspace.
type session struct {
	provider provider.Provider
	// index is set for the tree-sitter provider so watchers can drop it.
	index *treesitter.Provider
	close func(context.Context) error
}

// openProvider starts the configured provider for root.
func openProvider(ctx context.Context, cfg *config.Config, root string, logger zerolog.Logger) (*session, error) {
	switch cfg.Provider.Kind {
	case config.ProviderLSP:
		opts := []lsp.Option{
			lsp.WithLogger(logger.With().Str("component", "lsp").Logger()),
			lsp.WithLanguageID(cfg.Provider.LanguageID),
		}
		if cfg.Provider.InitTimeoutMS > 0 {
			opts = append(opts, lsp.WithInitTimeout(time.Duration(cfg.Provider.InitTimeoutMS)*time.Millisecond))
		}
		client, err := lsp.Start(ctx, cfg.Provider.Command, root, opts...)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("server", client.ServerName()).Msg("language server ready")
		return &session{provider: client, close: client.Close}, nil

	case config.ProviderTreeSitter, "":
		ts := treesitter.New(root,
			treesitter.WithScanner(scanner.NewScanner(cfg)),
			treesitter.WithLogger(logger.With().Str("component", "treesitter").Logger()),
		)
		return &session{
			provider: ts,
			index:    ts,
			close:    func(context.Context) error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Kind)
	}
}

// Close shuts the provider down, giving a language server a few seconds to
// exit cleanly.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.close(ctx)
}

// newEngine builds a dead code engine from the configuration. The report
// store lives under the workspace unless the cache dir is absolute.
func newEngine(c *cli.Context, cfg *config.Config, root string, logger zerolog.Logger) (*deadcode.Engine, error) {
	dir := cfg.Cache.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	store, err := cache.NewStore(dir, cfg.Cache.TTL, cfg.Cache.Enabled && !c.Bool("no-cache"))
	if err != nil {
		return nil, fmt.Errorf("open report cache: %w", err)
	}

	concurrency := cfg.Analysis.Concurrency
	if c.IsSet("concurrency") {
		concurrency = c.Int("concurrency")
	}
	timeout := cfg.Analysis.QueryTimeout()
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	opts := []deadcode.Option{
		deadcode.WithReportStore(store),
		deadcode.WithFileLister(scanner.NewScanner(cfg)),
		deadcode.WithLogger(logger),
		deadcode.WithConcurrency(concurrency),
		deadcode.WithQueryTimeout(timeout),
		deadcode.WithProviderIdentity(providerIdentity(cfg)),
	}
	opts = append(opts, deadcode.WithBuilderOptions(builder.WithEnumerationTimeout(cfg.Analysis.EnumerationTimeout())))
	if q := cfg.Analysis.EnumerationQuery; q != "" {
		opts = append(opts, deadcode.WithBuilderOptions(builder.WithEnumerationQuery(q)))
	}
	return deadcode.New(opts...), nil
}

// providerIdentity names the configured provider setup for the report
// store.
func providerIdentity(cfg *config.Config) string {
	id := cfg.Provider.Kind
	if cfg.Provider.Kind == config.ProviderLSP {
		id += " " + strings.Join(cfg.Provider.Command, " ")
		if cfg.Provider.LanguageID != "" {
			id += " (" + cfg.Provider.LanguageID + ")"
		}
	}
	return id
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// resolveRoot returns the absolute workspace root for path.
func resolveRoot(path string) (string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", usageError("%s is not a directory", path)
	}
	return root, nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/symreach/pkg/config"
)

const defaultConfigFile = "symreach.toml"

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Write a configuration file with the defaults",
				ArgsUsage: "[file]",
				Description: `Creates symreach.toml in the current directory unless a path is given.

Examples:
  symreach config init                          # Creates symreach.toml
  symreach config init .symreach/symreach.toml  # Creates config in .symreach
  symreach config init --force                  # Overwrite existing config file`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:  "validate",
				Usage: "Validate a configuration file",
				Description: `Validates a configuration file against the schema and semantic rules.

Examples:
  symreach config validate                 # Validates default config locations
  symreach -c symreach.toml config validate`,
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema for configuration files",
				Action: runConfigSchema,
			},
		},
	}
}

func loadConfigFromFlags(c *cli.Context) (*config.LoadResult, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	return config.LoadConfig(opts...)
}

func runConfigInit(c *cli.Context) error {
	outputPath := defaultConfigFile
	if c.NArg() > 0 {
		outputPath = c.Args().First()
	}

	if _, err := os.Stat(outputPath); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", outputPath)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	content, err := generateDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	color.Green("Created %s", outputPath)
	fmt.Fprintln(c.App.Writer, "Edit this file to choose a provider and tune analysis settings.")
	return nil
}

func generateDefaultConfig() (string, error) {
	content, err := toml.Marshal(config.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# symreach configuration\n")
	buf.WriteString("# provider.kind is \"treesitter\" (built in) or \"lsp\" (set provider.command)\n\n")
	buf.Write(content)
	return buf.String(), nil
}

func runConfigValidate(c *cli.Context) error {
	result, err := loadConfigFromFlags(c)
	if err != nil {
		color.Red("Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return cli.Exit("", 1)
	}

	if result.Source != "" {
		color.Green("Configuration valid: %s", result.Source)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(c *cli.Context) error {
	result, err := loadConfigFromFlags(c)
	if err != nil {
		return err
	}

	if result.Source != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", result.Source)
	} else {
		fmt.Fprintln(c.App.Writer, "# Default configuration (no config file found)")
	}

	content, err := toml.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(content))
	return nil
}

func runConfigSchema(c *cli.Context) error {
	_, err := c.App.Writer.Write(config.Schema())
	return err
}

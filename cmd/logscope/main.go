// Command logscope is the CLI entry point for the log analysis engine:
// one-shot subcommands (open, search, filter, analyze, cluster,
// baseline) plus an "mcp" subcommand that exposes the same engine over
// the Model Context Protocol. Flag/command layout follows the
// teacher's cmd/lci/main.go.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/logscope/internal/config"
	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/session"

	"github.com/urfave/cli/v2"
)

const appVersion = "0.1.0"

var sess *session.Session

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	cfg, err := config.LoadKDL(absRoot)
	if err != nil {
		return nil, fmt.Errorf("load .logscope.kdl: %w", err)
	}
	if cfg == nil {
		cfg = config.Default()
		cfg.Project.Root = absRoot
	}

	validator := config.NewValidator()
	if err := validator.ValidateAndSetDefaults(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:    "logscope",
		Usage:   "Inspect, filter, and baseline large log files",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root to load .logscope.kdl from (defaults to the working directory)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				debug.SetDebugOutput(os.Stderr)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			sess = session.New(cfg, "logscope")
			return nil
		},
		Commands: []*cli.Command{
			openCommand,
			getLinesCommand,
			searchCommand,
			filterCommand,
			analyzeCommand,
			clusterCommand,
			baselineCommand,
			mcpCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "logscope: %v\n", err)
		os.Exit(1)
	}
}

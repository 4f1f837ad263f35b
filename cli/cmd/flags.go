// Package cmd provides CLI commands for the docbroker binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbroker/cli/config"
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag points at a docbroker.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to docbroker.yaml",
		EnvVars: []string{"DOCBROKER_CONFIG"},
	}

	// SpoolDirFlag overrides spool.dir.
	SpoolDirFlag = &cli.StringFlag{
		Name:    "spool-dir",
		Usage:   "Spool directory (overrides spool.dir)",
		EnvVars: []string{"DOCBROKER_SPOOL_DIR"},
	}
)

// ReadOnlyFlags returns the shared flags for commands that only inspect
// local state.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, ConfigFlag, SpoolDirFlag}
}

// resolveConfig loads --config when given, applies flag overrides that were
// explicitly set, fills defaults and validates. Flags win over the file.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("spool-dir") {
		cfg.Spool.Dir = c.String("spool-dir")
	}
	if c.IsSet("listen") {
		cfg.Server.Listen = c.String("listen")
	}
	if c.IsSet("engine-host") {
		cfg.Engine.Host = c.String("engine-host")
	}
	if c.IsSet("engine-port") {
		cfg.Engine.Port = c.Int("engine-port")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

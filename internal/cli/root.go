// Package cli implements auditctl, the operator command line.
package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-a11y/internal/config"
	"github.com/bryanwahyu/automaton-a11y/internal/middleware"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "auditctl",
	Short:         "Operator tools for the accessibility audit service",
	Long:          "Runs one-off accessibility scans, applies database migrations and grants credits.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file is only an error when required;
// otherwise env overrides and defaults are used.
func loadConfig(required bool) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return config.Parse(nil, os.Getenv)
	}
	return nil, err
}

func logger(cfg *config.Config) *slog.Logger {
	return middleware.NewLogger(cfg.Env)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hcc-mvi-risk-server/internal/app"
	"github.com/hcc-mvi-risk-server/internal/config"
	"github.com/hcc-mvi-risk-server/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configFile string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "mvictl",
	Short: "Operate the HCC MVI risk scoring engine",
	Long: "mvictl scores hepatocellular carcinoma patients for microvascular invasion risk,\n" +
		"records confirmed outcomes and recalibrates the model from labeled cases.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "config file (default: search ./, ./config, /etc/mvi-risk-server)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(rescoreCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.Version = version
}

// openApp loads configuration and wires the application for one command.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, *logrus.Logger, error) {
	manager, err := config.NewManagerWithFile(rootFlags.configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(rootFlags.logLevel, "text", cmd.ErrOrStderr())
	a, err := app.Build(ctx, manager.GetConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return fallback, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

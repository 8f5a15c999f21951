package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hcc-mvi-risk-server/internal/setup"
)

var mcpFlags struct {
	clientConfig string
	binary       string
	dataDir      string
	remove       bool
}

var mcpInstallCmd = &cobra.Command{
	Use:   "mcp-install",
	Short: "Register the lite MCP server with a desktop MCP client",
	RunE:  runMCPInstall,
}

var mcpStatusCmd = &cobra.Command{
	Use:   "mcp-status",
	Short: "Show the lite MCP server registration",
	RunE:  runMCPStatus,
}

func init() {
	f := mcpInstallCmd.Flags()
	f.StringVar(&mcpFlags.clientConfig, "client-config", "", "client config file (default: OS-specific desktop location)")
	f.StringVar(&mcpFlags.binary, "binary", "", "path to "+setup.BinaryName+" (default: search PATH)")
	f.StringVar(&mcpFlags.dataDir, "data-dir", "", "data directory passed as MVI_DATA_DIR")
	f.BoolVar(&mcpFlags.remove, "remove", false, "remove the registration instead")

	mcpStatusCmd.Flags().StringVar(&mcpFlags.clientConfig, "client-config", "", "client config file")

	rootCmd.AddCommand(mcpInstallCmd)
	rootCmd.AddCommand(mcpStatusCmd)
}

func clientConfigPath() (string, error) {
	if mcpFlags.clientConfig != "" {
		return mcpFlags.clientConfig, nil
	}
	return setup.DefaultConfigPath()
}

func runMCPInstall(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	path, err := clientConfigPath()
	if err != nil {
		return err
	}

	if mcpFlags.remove {
		removed, err := setup.Unregister(path)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(out, "Removed %s from %s\n", setup.ServerName, path)
		} else {
			fmt.Fprintf(out, "%s was not registered in %s\n", setup.ServerName, path)
		}
		return nil
	}

	if _, err := setup.Register(setup.Options{ConfigPath: path, BinaryPath: mcpFlags.binary, DataDir: mcpFlags.dataDir}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered %s in %s\nRestart the client to load it.\n", setup.ServerName, path)
	return nil
}

func runMCPStatus(cmd *cobra.Command, _ []string) error {
	path, err := clientConfigPath()
	if err != nil {
		return err
	}
	status, err := setup.Inspect(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Client config: %s\n", status.ConfigPath)
	if !status.Registered {
		fmt.Fprintf(out, "Registered:    no (run 'mvictl mcp-install')\n")
		return nil
	}
	fmt.Fprintf(out, "Registered:    yes\nBinary:        %s\n", status.BinaryPath)
	if status.DataDir != "" {
		fmt.Fprintf(out, "Data dir:      %s\n", status.DataDir)
	}
	for _, issue := range status.Issues {
		fmt.Fprintf(out, "  ! %s\n", issue)
	}
	return nil
}

// Gandalf is an MCP server that aggregates AI assistant conversation
// history stored locally by Cursor, Claude Code, and Windsurf.
//
// The server speaks MCP over stdio: point a client at the binary and call
// tools such as recall_conversations or search_conversations. Stdout
// carries the wire protocol, so all logs go to stderr. Everything is read
// locally; nothing leaves the machine unless telemetry is explicitly
// enabled.
//
// Configuration is loaded from ~/.gandalf/config.yaml and overridden by
// GANDALF_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the stdio MCP server
//	gandalf
//
//	# List discovered conversation stores
//	gandalf sources
//
//	# Show version information
//	gandalf version
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Persistent flags shared by every subcommand.
var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gandalf",
	Short: "MCP server for local AI assistant conversation history",
	Long: `gandalf discovers conversation stores written by Cursor, Claude Code, and
Windsurf on this machine and serves them to MCP clients over stdio.

Run without arguments to start the server. The MCP client owns stdin and
stdout; logs are written to stderr.`,
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.gandalf/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (json, console)")
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Openclaw runs the multi-agent content workflow.
//
// A task goes to the director for planning, is routed to the engineer or the
// copywriter, is audited by the critic or the growth lead up to three times,
// and is finalized by the creator and delivered privately. Every step is
// mirrored to a Telegram forum group when Telegram is enabled.
//
// Configuration is loaded from ~/.config/openclaw/config.yaml (or --config)
// and OPENCLAW_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon (Telegram intake, NATS intake, HTTP API)
//	openclaw serve
//
//	# Run one task in the foreground and print the transcript
//	openclaw run --transcript "write a launch tweet thread"
//
//	# Serve the MCP tools over stdio
//	openclaw mcp
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "openclaw",
		Short: "Multi-agent content workflow orchestrator",
		Long: `openclaw plans, executes, audits and delivers tasks with a team of
role-profiled agents, mirroring every step to a Telegram forum group.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/openclaw/config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newMCPCmd(opts),
		newChannelsCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "openclaw\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/hlabs/openclaw/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the workflow tools over MCP stdio",
		Long: `Serve the workflow as MCP tools on stdin/stdout.

Tools: submit_task, workflow_status, list_channels, list_messages.
Logs go to stderr so stdout carries only the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, appOptions{configPath: opts.configPath, logStderr: true, pacing: true})
		},
	}
}

func runMCP(ctx context.Context, opts appOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv, err := mcpserver.NewServer(&mcpserver.Config{
		Name:    "openclaw",
		Version: version,
		Logger:  a.logger.Underlying().Named("mcp"),
		Meter:   a.tel.Meter(instrumentationName + "/internal/mcp"),
	}, a.orch, a.store, a.scrubber)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	return srv.Run(ctx)
}

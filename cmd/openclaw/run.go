package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/spf13/cobra"
)

// cliSource tags tasks run from the command line.
const cliSource = "cli"

type runOptions struct {
	submitter  string
	pacing     bool
	transcript bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run one task in the foreground",
		Long: `Run one task through the whole workflow and print the outcome.

The task is read from the arguments, or from stdin when the only argument is
"-". Logs go to stderr.

Examples:
  # Run a task
  openclaw run "design a caching layer for the billing API"

  # Read the task from stdin and print every channel afterwards
  cat brief.txt | openclaw run --transcript -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTask(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTask(ctx, cmd.OutOrStdout(), root.configPath, text, opts)
		},
	}
	cmd.Flags().StringVar(&opts.submitter, "submitter", "", "Telegram user id that receives the private delivery")
	cmd.Flags().BoolVar(&opts.pacing, "pacing", false, "keep the delays between workflow steps")
	cmd.Flags().BoolVar(&opts.transcript, "transcript", false, "print every conversation channel after the run")
	return cmd
}

func readTask(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

func runTask(ctx context.Context, out io.Writer, configPath, text string, opts *runOptions) error {
	a, err := newApp(ctx, appOptions{configPath: configPath, logStderr: true, pacing: opts.pacing})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	run, err := a.orch.RunTask(ctx, workflow.Task{
		Text:        text,
		SubmitterID: opts.submitter,
		Source:      cliSource,
		SubmittedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	snap := run.Snapshot()
	printRun(out, snap, a.scrub)
	if opts.transcript {
		printTranscript(out, a.store, a.scrub)
	}
	if snap.Status == workflow.StatusFailed {
		return fmt.Errorf("run %s failed after %d audits", snap.ID, snap.Audits)
	}
	return nil
}

func (a *app) scrub(text string) string {
	return a.scrubber.Scrub(text).Scrubbed
}

func printRun(w io.Writer, s workflow.RunSnapshot, scrub func(string) string) {
	fmt.Fprintf(w, "Run:       %s\n", s.ID)
	fmt.Fprintf(w, "Status:    %s\n", s.Status)
	if s.Route != nil {
		fmt.Fprintf(w, "Route:     %s -> %s\n", s.Route.Executor, s.Route.Auditor)
	}
	fmt.Fprintf(w, "Audits:    %d\n", s.Audits)
	fmt.Fprintf(w, "Revisions: %d\n", s.Revisions)
	switch {
	case s.Delivered == nil:
	case *s.Delivered:
		fmt.Fprintf(w, "Delivery:  sent to %s\n", s.Recipient)
	default:
		fmt.Fprintf(w, "Delivery:  failed\n")
	}
	if s.Final != "" {
		fmt.Fprintf(w, "\n%s\n", scrub(s.Final))
	}
}

func printTranscript(w io.Writer, store *conversation.Store, scrub func(string) string) {
	for _, ch := range conversation.Channels() {
		msgs, err := store.Messages(ch.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "\n== %s (%d)\n", ch.Name, len(msgs))
		for _, m := range msgs {
			fmt.Fprintf(w, "[%s] %s\n", m.Role, scrub(m.Content))
		}
	}
}

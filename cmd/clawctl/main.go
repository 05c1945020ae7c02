// Package main implements clawctl, the CLI for the openclaw HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	httpapi "github.com/hlabs/openclaw/internal/http"
	"github.com/hlabs/openclaw/internal/monitor"
	"github.com/hlabs/openclaw/internal/workflow"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	// serverURL is the base URL for the openclaw HTTP server
	serverURL string
	timeout   time.Duration
}

func (o *rootOptions) client() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(o.serverURL, "/"),
		http:    &http.Client{Timeout: o.timeout},
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "clawctl",
		Short: "CLI for the openclaw HTTP API",
		Long: `clawctl is a command-line interface for a running openclaw daemon.
It submits tasks, shows workflow status and reads conversation channels.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:9191", "openclaw server URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newChannelsCmd(opts),
		newMessagesCmd(opts),
		newHealthCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var submitter string
	cmd := &cobra.Command{
		Use:   "submit [task]",
		Short: "Submit a task",
		Long: `Submit a task to the workflow. Fails when a task is already running.

Examples:
  # Submit a task
  clawctl submit "write a launch tweet thread"

  # Submit from stdin and deliver to a Telegram user
  cat brief.txt | clawctl submit --submitter 555 -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 1 && args[0] == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("no task text")
			}

			var resp httpapi.SubmitResponse
			err := opts.client().do(cmd.Context(), http.MethodPost, "/api/v1/tasks",
				httpapi.SubmitRequest{Text: text, SubmitterID: submitter}, &resp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:    %s\n", resp.RunID)
			fmt.Fprintf(out, "Status: %s\n", resp.Status)
			if resp.Recipient != "" {
				fmt.Fprintf(out, "Deliver to: %s\n", resp.Recipient)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&submitter, "submitter", "", "Telegram user id that receives the private delivery")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workflow status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintf(out, "Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Busy:   %t\n", resp.Busy)
			printRun(out, "Active", resp.Active)
			printRun(out, "Last", resp.Last)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response")
	return cmd
}

func printRun(w io.Writer, label string, r *workflow.RunSnapshot) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "%-7s %s %s (audits %d, revisions %d)\n", label+":", r.ID, r.Status, r.Audits, r.Revisions)
}

func newChannelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List conversation channels with message counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Channels(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tOWNER\tMESSAGES")
			for _, ch := range resp.Channels {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", ch.ID, ch.Name, ch.Owner, ch.Messages)
			}
			return tw.Flush()
		},
	}
}

func newMessagesCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <channel>",
		Short: "Print the messages of a channel",
		Long: `Print the messages of a conversation channel, oldest first.

Examples:
  # The last five messages of the QA channel
  clawctl messages quality-control --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/channels/" + url.PathEscape(args[0]) + "/messages"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var resp httpapi.MessagesResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range resp.Messages {
				marker := ""
				if m.InProgress {
					marker = " (typing)"
				}
				fmt.Fprintf(out, "%s [%s]%s %s\n", m.CreatedAt.Format(time.TimeOnly), m.Role, marker, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "only the newest N messages")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check openclaw server health",
		Long: `Check the health status of the openclaw HTTP server.

Examples:
  # Check health on a different server
  clawctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp httpapi.HealthResponse
			err := opts.client().do(cmd.Context(), http.MethodGet, "/health", nil, &resp)
			var apiErr *apiError
			// A degraded server answers 503 with a full health body.
			if err != nil && !(errors.As(err, &apiErr) && apiErr.health != nil) {
				return err
			}
			if apiErr != nil {
				resp = *apiErr.health
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.serverURL)
			if resp.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", resp.Version)
			}
			fmt.Fprintf(out, "Workflow: %s\n", resp.Workflow)
			names := make([]string, 0, len(resp.Checks))
			for name := range resp.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: %s\n", name, resp.Checks[name])
			}
			return err
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of the workflow",
		Long: `Open a terminal dashboard that follows the workflow: status, the
active run's phase and audit count, and per-channel activity.

Keys: q quits, r refreshes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return monitor.Run(cmd.Context(), opts.client(), opts.serverURL, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

// apiClient calls the openclaw HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// apiError is a non-2xx response.
type apiError struct {
	code    int
	message string
	status  string
	health  *httpapi.HealthResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned status %d: %s", e.code, e.message)
	if e.status != "" {
		msg += " (workflow " + e.status + ")"
	}
	return msg
}

// Status implements monitor.Source.
func (c *apiClient) Status(ctx context.Context) (*httpapi.StatusResponse, error) {
	var resp httpapi.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Channels implements monitor.Source.
func (c *apiClient) Channels(ctx context.Context) (*httpapi.ChannelsResponse, error) {
	var resp httpapi.ChannelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/channels", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var _ monitor.Source = (*apiClient)(nil)

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{code: resp.StatusCode, message: strings.TrimSpace(string(raw))}
		var er httpapi.ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			apiErr.message = er.Message
			apiErr.status = string(er.Status)
		}
		if path == "/health" {
			var h httpapi.HealthResponse
			if json.Unmarshal(raw, &h) == nil && h.Status != "" {
				apiErr.health = &h
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

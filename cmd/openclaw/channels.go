package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/spf13/cobra"
)

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the conversation channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tOWNER\tDESCRIPTION")
			for _, ch := range conversation.Channels() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ch.ID, ch.Name, ch.Owner, ch.Description)
			}
			return tw.Flush()
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/runlog"
)

func logCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent sync runs from the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			syncCfg, err := config.LoadSync()
			if err != nil {
				return err
			}
			entries := runlog.New(syncCfg.LogPath).Entries()
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			if asJSON {
				return writeEntriesJSON(cmd.OutOrStdout(), entries)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of most recent runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func writeEntriesJSON(out io.Writer, entries []runlog.Entry) error {
	if entries == nil {
		entries = []runlog.Entry{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// renderEntries prints runs newest first with their failures indented.
func renderEntries(entries []runlog.Entry) string {
	if len(entries) == 0 {
		return "No sync runs recorded yet.\n"
	}

	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		trigger := e.Trigger
		if trigger == "" {
			trigger = "-"
		}
		fmt.Fprintf(&b, "%s  %s  orders=%d written=%d failures=%d\n",
			e.Timestamp.Local().Format(time.DateTime), trigger, e.OrdersSeen, e.RowsWritten, len(e.Failures))
		if e.WriteError != "" {
			fmt.Fprintf(&b, "    sheet write failed: %s\n", e.WriteError)
		}
		for _, f := range e.Failures {
			fmt.Fprintf(&b, "    row %d (%s): %s\n", f.Row, f.Order, f.Error)
		}
	}
	return b.String()
}

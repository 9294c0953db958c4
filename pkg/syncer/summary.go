package syncer

import (
	"fmt"
	"strings"

	"github.com/sipeed/ordersync/pkg/runlog"
	"github.com/sipeed/ordersync/pkg/sheets"
)

// MaxSummaryFailures caps the failure lines shown in a summary.
const MaxSummaryFailures = 15

type Result struct {
	RunID         string
	Trigger       string
	InputColumn   string
	OutputColumns sheets.Columns
	DryRun        bool

	OrdersSeen  int
	Updates     []sheets.RowUpdate
	RowsWritten int
	Failures    []runlog.Failure
	WriteError  error
}

func (r *Result) Empty() bool {
	return r.OrdersSeen == 0
}

// Summary renders the chat message posted after a run.
func (r *Result) Summary() string {
	if r.Empty() {
		return fmt.Sprintf("No order numbers (C#1234) found in column %s of the sheet. Nothing to do.", r.InputColumn)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d order row(s) in column %s.\n", r.OrdersSeen, r.InputColumn)
	span := r.OutputColumns.First + "-" + r.OutputColumns.Last
	if r.DryRun {
		fmt.Fprintf(&b, "Dry run: would write %s on %d row(s).\n", span, len(r.Updates))
	} else {
		fmt.Fprintf(&b, "Wrote %s on %d row(s).\n", span, r.RowsWritten)
	}
	if r.WriteError != nil {
		fmt.Fprintf(&b, "Sheet write failed: %v\n", r.WriteError)
	}

	if n := len(r.Failures); n > 0 {
		fmt.Fprintf(&b, "Failures (%d):\n", n)
		shown := r.Failures
		if n > MaxSummaryFailures {
			shown = shown[:MaxSummaryFailures]
		}
		for _, f := range shown {
			fmt.Fprintf(&b, "• Row %d (%s): %s\n", f.Row, f.Order, f.Error)
		}
		if n > MaxSummaryFailures {
			fmt.Fprintf(&b, "…and %d more.\n", n-MaxSummaryFailures)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

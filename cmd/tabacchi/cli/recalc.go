package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/jobs"
)

// RecalcOptions defines the flags of the recalc command.
type RecalcOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RecalcSummary is the JSON output of recalc.
type RecalcSummary struct {
	Status   consumption.Status `json:"status"`
	Rows     int                `json:"rows"`
	Duration string             `json:"duration"`
	Error    string             `json:"error,omitempty"`
}

// RecalcCommand runs the consumption recalculation in process, printing
// progress to Stderr. Exit codes: 0 completed, 1 failed, 2 stopped.
func RecalcCommand(ctx context.Context, service jobs.Recalculator, opts RecalcOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	last := -1
	progress := func(done, total int) {
		if total == 0 {
			return
		}
		pct := done * 100 / total
		if pct/10 != last/10 || done == total {
			_, _ = fmt.Fprintf(opts.Stderr, "recalc: %d/%d (%d%%)\n", done, total, pct)
			last = pct
		}
	}
	res, err := service.Recalculate(ctx, progress)
	summary := RecalcSummary{Status: res.Status, Rows: res.Rows, Duration: res.Duration.String()}
	if err != nil {
		summary.Error = err.Error()
	}

	if opts.JSONOutput {
		if encErr := json.NewEncoder(opts.Stdout).Encode(summary); encErr != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recalc: encode json: %v\n", encErr)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%s: %d rows in %s\n", summary.Status, summary.Rows, summary.Duration)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "recalc: %v\n", err)
		}
	}
	switch res.Status {
	case consumption.StatusCompleted:
		return 0
	case consumption.StatusStopped:
		return 2
	default:
		return 1
	}
}

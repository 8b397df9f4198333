package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sisco70/tabacchi/internal/schedule"
)

// PlanCheckOptions defines the flags of the plan check command.
type PlanCheckOptions struct {
	Path       string
	Now        time.Time
	Location   *time.Location
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// PlanCheckSummary is the JSON output of plan check.
type PlanCheckSummary struct {
	Entries      int     `json:"entries"`
	Confirmed    int     `json:"confirmed"`
	NextDeadline *string `json:"next_deadline,omitempty"`
	NextDelivery *string `json:"next_delivery,omitempty"`
}

// PlanCheckCommand loads a delivery plan file and reports the next slot after
// Now. It exits with 10 when the plan has no slot left.
func PlanCheckCommand(opts PlanCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "plan check: --file is required")
		return 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	entries, err := schedule.LoadFile(opts.Path, opts.Location)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "plan check: %v\n", err)
		return 1
	}

	summary := PlanCheckSummary{Entries: len(entries)}
	for _, e := range entries {
		if e.Valid() {
			summary.Confirmed++
		}
	}
	list := schedule.NewList(entries)
	slot, ok, _ := list.Next(context.Background(), opts.Now)
	if ok {
		deadline := slot.Deadline.Format("2006-01-02 15:04")
		delivery := slot.Delivery.Format(time.DateOnly)
		summary.NextDeadline, summary.NextDelivery = &deadline, &delivery
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "plan check: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "entries: %d (confirmed %d)\n", summary.Entries, summary.Confirmed)
		if ok {
			_, _ = fmt.Fprintf(opts.Stdout, "next: deliver %s, send before %s\n", *summary.NextDelivery, *summary.NextDeadline)
		} else {
			_, _ = fmt.Fprintln(opts.Stdout, "next: none")
		}
	}
	if !ok {
		return 10
	}
	return 0
}

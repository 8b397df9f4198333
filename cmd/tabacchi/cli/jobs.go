package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/sisco70/tabacchi/internal/consumption"
	"github.com/sisco70/tabacchi/jobs"
)

// JobsOptions defines the inputs of the jobs command. Enqueuer and Inspector
// are dialed from RedisAddr when nil.
type JobsOptions struct {
	RedisAddr string
	Args      []string
	Enqueuer  consumption.Enqueuer
	Inspector jobs.QueueInspector
	Stdout    io.Writer
	Stderr    io.Writer
}

// JobsCommand runs "jobs trigger" or "jobs stats". A trigger that finds a
// recalculation already queued is not an error.
func JobsCommand(ctx context.Context, opts JobsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Args) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "jobs: expected trigger or stats")
		return 2
	}

	if opts.Enqueuer == nil || opts.Inspector == nil {
		redisOpts, err := jobs.RedisOpt(opts.RedisAddr)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs: %v\n", err)
			return 1
		}
		if opts.Enqueuer == nil {
			client := jobs.NewClient(redisOpts, "cli")
			defer func() { _ = client.Close() }()
			opts.Enqueuer = client
		}
		if opts.Inspector == nil {
			inspector := asynq.NewInspector(redisOpts)
			defer func() { _ = inspector.Close() }()
			opts.Inspector = inspector
		}
	}

	switch opts.Args[0] {
	case "trigger":
		id, err := opts.Enqueuer.EnqueueRecalculation(ctx)
		switch {
		case errors.Is(err, consumption.ErrAlreadyQueued):
			_, _ = fmt.Fprintln(opts.Stdout, "recalculation already queued")
		case err != nil:
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		default:
			_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s)\n", id, jobs.TaskConsumptionRecalculate)
		}
		return 0
	case "stats":
		stats, err := jobs.ReadQueue(opts.Inspector)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "jobs: unknown subcommand %q\n", opts.Args[0])
		return 2
	}
}

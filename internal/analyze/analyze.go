package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/aggregate"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/lock"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/parser"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/report"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/store"
	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

// RunResult describes what one trace contributed to the report.
type RunResult struct {
	Input      string
	Run        int // run number in the report, 1-based
	Events     int
	Qualifying int
	Tasks      int
	LongTasks  int
	Summary    *aggregate.Summary // set in debug mode
}

// Result contains the outcome of an analysis.
type Result struct {
	Output  string
	Runs    []RunResult
	Total   int // runs in the report after merging
	Rows    int
	Written bool
}

// Run executes the full pipeline: every input is aggregated and merged as
// its own run, then the report is written if its content changed. Nothing
// is written when any trace or the existing report fails to load.
func Run(ctx context.Context, cfg model.Config) (*Result, error) {
	if len(cfg.Inputs) == 0 {
		return nil, errors.New("no input trace given")
	}
	if cfg.Output == "" {
		return nil, errors.New("no output report given")
	}

	traces, err := parser.ReadTraceFiles(ctx, cfg.Inputs)
	if err != nil {
		return nil, fmt.Errorf("read traces: %w", err)
	}

	if cfg.Lock {
		l, err := lock.Acquire(cfg.Output)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := l.Release(); err != nil {
				slog.Warn("Could not release report lock", "path", lock.Path(cfg.Output), "error", err)
			}
		}()
	}

	merged, previous, err := store.ReadReport(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	slog.Debug("Loaded report", "path", cfg.Output, "runs", merged.Runs, "rows", len(merged.Rows))

	result := &Result{Output: cfg.Output}
	for i, events := range traces {
		tasks := aggregate.Aggregate(events)
		merged, err = report.Merge(merged, tasks)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", cfg.Inputs[i], err)
		}

		rr := summarize(cfg.Inputs[i], merged.Runs, events, tasks)
		if cfg.Debug {
			s := aggregate.Inspect(events)
			rr.Summary = &s
		}
		result.Runs = append(result.Runs, rr)

		slog.Debug("Merged run",
			"input", rr.Input,
			"run", rr.Run,
			"events", rr.Events,
			"qualifying", rr.Qualifying,
			"tasks", rr.Tasks,
		)
	}

	result.Total = merged.Runs
	result.Rows = len(merged.Rows)

	result.Written, err = store.WriteIfChanged(cfg.Output, store.Marshal(merged), previous)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func summarize(input string, run int, events []model.TraceEvent, tasks []model.Task) RunResult {
	rr := RunResult{
		Input:  input,
		Run:    run,
		Events: len(events),
		Tasks:  len(tasks),
	}
	for _, t := range tasks {
		rr.Qualifying += t.Occurrences
		if t.BlockingTime > 0 {
			rr.LongTasks++
		}
	}
	return rr
}

// Check loads and validates an existing report without modifying it.
func Check(path string) (*report.Report, error) {
	r, raw, err := store.ReadReport(path)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("report %s does not exist or is empty", path)
	}
	return r, nil
}

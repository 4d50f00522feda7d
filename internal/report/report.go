// Package report holds the multi-run TBT report and the merge that appends
// one run to it.
//
// A report has a row per (task name, URL) pair and a metrics cell per run.
// A nil cell means the task did not occur in that run; it is only encoded
// as the "-1" sentinel by the store.
package report

import (
	"errors"
	"fmt"

	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

// ErrMalformed is returned for reports that break the row/run invariants.
var ErrMalformed = errors.New("malformed report")

// Metrics are the per-run aggregates of one task. Durations are in
// milliseconds.
type Metrics struct {
	BlockingTime  float64
	TotalDuration float64
	Occurrences   int
}

// Row is one task across all runs.
type Row struct {
	Name         string
	URL          string
	Category     string
	HasLongTasks bool
	Runs         []*Metrics // len == Report.Runs; nil when absent from a run
}

// Key returns the row identity.
func (r Row) Key() model.TaskKey {
	return model.TaskKey{Name: r.Name, URL: r.URL}
}

// Report is the full table. A zero Report has no header at all.
type Report struct {
	Runs int
	Rows []Row
}

// Empty reports whether r has neither runs nor rows.
func (r *Report) Empty() bool {
	return r == nil || (r.Runs == 0 && len(r.Rows) == 0)
}

// Find returns the row for the given task identity.
func (r *Report) Find(name, url string) (Row, bool) {
	if r == nil {
		return Row{}, false
	}
	key := model.TaskKey{Name: name, URL: url}
	for _, row := range r.Rows {
		if row.Key() == key {
			return row, true
		}
	}
	return Row{}, false
}

// Validate checks that every row has one cell per run and that no task
// identity appears twice.
func (r *Report) Validate() error {
	if r == nil {
		return nil
	}
	if r.Runs < 0 {
		return fmt.Errorf("%w: negative run count %d", ErrMalformed, r.Runs)
	}
	seen := make(map[model.TaskKey]int, len(r.Rows))
	for i, row := range r.Rows {
		if len(row.Runs) != r.Runs {
			return fmt.Errorf("%w: row %d (%s) has %d runs, header has %d",
				ErrMalformed, i+1, row.Name, len(row.Runs), r.Runs)
		}
		if prev, ok := seen[row.Key()]; ok {
			return fmt.Errorf("%w: rows %d and %d share task %q at %q",
				ErrMalformed, prev+1, i+1, row.Name, row.URL)
		}
		seen[row.Key()] = i
	}
	return nil
}

// Clone returns a deep copy of r with room for one more run per row.
func (r *Report) Clone() *Report {
	if r == nil {
		return &Report{}
	}
	out := &Report{Runs: r.Runs, Rows: make([]Row, len(r.Rows))}
	for i, row := range r.Rows {
		runs := make([]*Metrics, len(row.Runs), len(row.Runs)+1)
		for j, m := range row.Runs {
			if m != nil {
				c := *m
				runs[j] = &c
			}
		}
		row.Runs = runs
		out.Rows[i] = row
	}
	return out
}

// Merge returns a new report with tasks appended as the next run. old is
// left untouched.
//
// Known tasks get their metrics appended and their long-task flag raised if
// this run blocked; the flag is never lowered. Unknown tasks become new rows
// with no metrics for earlier runs. Rows without a task in this run get an
// empty cell. Tasks sharing an identity are summed into a single cell.
func Merge(old *Report, tasks []model.Task) (*Report, error) {
	if err := old.Validate(); err != nil {
		return nil, err
	}

	out := old.Clone()
	prior := out.Runs
	out.Runs++

	index := make(map[model.TaskKey]int, len(out.Rows)+len(tasks))
	for i, row := range out.Rows {
		index[row.Key()] = i
	}
	updated := make(map[int]bool, len(tasks))

	for _, t := range tasks {
		m := &Metrics{
			BlockingTime:  t.BlockingTime,
			TotalDuration: t.TotalDuration,
			Occurrences:   t.Occurrences,
		}

		i, ok := index[t.Key()]
		if !ok {
			runs := make([]*Metrics, prior, prior+1)
			i = len(out.Rows)
			index[t.Key()] = i
			out.Rows = append(out.Rows, Row{
				Name:         t.Name,
				URL:          t.URL,
				Category:     t.Category,
				HasLongTasks: t.BlockingTime > 0,
				Runs:         append(runs, m),
			})
			updated[i] = true
			continue
		}

		row := &out.Rows[i]
		if t.BlockingTime > 0 {
			row.HasLongTasks = true
		}
		if updated[i] {
			cur := row.Runs[prior]
			cur.BlockingTime += m.BlockingTime
			cur.TotalDuration += m.TotalDuration
			cur.Occurrences += m.Occurrences
			continue
		}
		row.Runs = append(row.Runs, m)
		updated[i] = true
	}

	for i := range out.Rows {
		if !updated[i] {
			out.Rows[i].Runs = append(out.Rows[i].Runs, nil)
		}
	}

	return out, nil
}

package aggregate

import (
	"sort"
	"strings"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/tbt"
	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

const (
	// UnknownTask names tasks built from events without a name.
	UnknownTask = "Unknown Task"
	// UnknownCategory is recorded when the first event of a task has no category.
	UnknownCategory = "unknown"
)

// Aggregate folds all qualifying events into one Task per (name, URL) pair.
// Tasks are returned in the order their key was first seen. The category of
// a task is the category of its first event.
func Aggregate(events []model.TraceEvent) []model.Task {
	var tasks []model.Task
	index := make(map[model.TaskKey]int)

	for _, e := range events {
		if !tbt.IsPotentialTBTTask(e) {
			continue
		}

		name := e.Name
		if name == "" {
			name = UnknownTask
		}
		key := model.TaskKey{Name: name, URL: e.URL}

		i, ok := index[key]
		if !ok {
			category := e.Category
			if category == "" {
				category = UnknownCategory
			}
			i = len(tasks)
			index[key] = i
			tasks = append(tasks, model.Task{Name: name, URL: e.URL, Category: category})
		}

		t := &tasks[i]
		t.BlockingTime += tbt.BlockingTime(e)
		t.TotalDuration += tbt.DurationMs(e)
		t.Occurrences++
	}

	return tasks
}

// Count is one entry of a frequency table.
type Count struct {
	Value string
	Count int
}

// Summary describes what a trace contains, for diagnostics only.
type Summary struct {
	Events          int
	Qualifying      int
	Categories      []Count // individual categories across all events
	Names           []Count // event names across all events
	QualifyingNames []Count // event names of qualifying events
}

// Inspect counts observed categories and event names. Tables are sorted by
// descending count, then by value.
func Inspect(events []model.TraceEvent) Summary {
	categories := make(map[string]int)
	names := make(map[string]int)
	qualifying := make(map[string]int)

	s := Summary{Events: len(events)}
	for _, e := range events {
		for _, c := range strings.Split(e.Category, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories[c]++
			}
		}
		if e.Name != "" {
			names[e.Name]++
		}
		if tbt.IsPotentialTBTTask(e) {
			s.Qualifying++
			name := e.Name
			if name == "" {
				name = UnknownTask
			}
			qualifying[name]++
		}
	}

	s.Categories = sortedCounts(categories)
	s.Names = sortedCounts(names)
	s.QualifyingNames = sortedCounts(qualifying)
	return s
}

func sortedCounts(m map[string]int) []Count {
	counts := make([]Count, 0, len(m))
	for v, n := range m {
		counts = append(counts, Count{Value: v, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})
	return counts
}

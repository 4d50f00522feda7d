package model

// TraceEvent is a single event from a browser performance trace.
// Absent fields are left at their zero value (nil for Duration and ThreadID,
// "" for strings) so callers can tell "missing" from "zero".
type TraceEvent struct {
	Phase    string   `json:"ph"`
	Duration *float64 `json:"dur,omitempty"` // microseconds
	Name     string   `json:"name,omitempty"`
	Category string   `json:"cat,omitempty"` // comma-separated list
	ThreadID *int64   `json:"tid,omitempty"`
	URL      string   `json:"url,omitempty"` // args.data.url
}

// Task aggregates all qualifying events sharing the same (Name, URL) pair
// within a single run. Durations are in milliseconds.
type Task struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	Category      string  `json:"category"`
	BlockingTime  float64 `json:"blocking_time"`
	TotalDuration float64 `json:"total_duration"`
	Occurrences   int     `json:"occurrences"`
}

// TaskKey is the identity used to align tasks across runs.
type TaskKey struct {
	Name string
	URL  string
}

func (k TaskKey) String() string {
	return k.Name + "|" + k.URL
}

// Key returns the identity of the task inside a report.
func (t Task) Key() TaskKey {
	return TaskKey{Name: t.Name, URL: t.URL}
}

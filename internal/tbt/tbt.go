// Package tbt decides which trace events can contribute to Total Blocking
// Time and how much each one contributes.
package tbt

import (
	"strings"

	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

const (
	// PhaseComplete marks an event whose begin and end are already resolved.
	PhaseComplete = "X"

	// MainThreadID is the thread id Chrome reserves for the renderer main
	// thread in exported traces.
	MainThreadID int64 = 1

	// LongTaskThresholdMs is the portion of every task that never counts as
	// blocking.
	LongTaskThresholdMs = 50.0
)

// Category tokens are matched as lowercase substrings of each category.
var tbtCategories = []string{
	"scripting",
	"rendering",
	"painting",
	"loading",
	"v8",
	"blink",
	"benchmark",
	"toplevel",
	"input",
	"disabled-by-default-devtools.timeline",
}

// Task-type tokens are matched as lowercase substrings of the event name.
var tbtTaskTypes = lower([]string{
	// script execution
	"EvaluateScript",
	"FunctionCall",
	"TimerFire",
	"EventDispatch",
	"FireAnimationFrame",
	"RunMicrotasks",
	"RunTask",
	"v8.run",
	// compile
	"v8.compile",
	"CompileScript",
	"CompileCode",
	// parsing, style and layout
	"ParseHTML",
	"ParseAuthorStyleSheet",
	"Layout",
	"UpdateLayoutTree",
	"RecalculateStyles",
	"UpdateLayerTree",
	// paint and composite
	"Paint",
	"PrePaint",
	"CompositeLayers",
	"RasterTask",
	"Decode",
	// resource lifecycle
	"ResourceSendRequest",
	"ResourceReceiveResponse",
	"ResourceReceivedData",
	"ResourceFinish",
	"XHRReadyStateChange",
})

// IsPotentialTBTTask reports whether e is a complete main-thread event of a
// kind that can block the main thread.
func IsPotentialTBTTask(e model.TraceEvent) bool {
	if e.Phase != PhaseComplete {
		return false
	}
	if e.Duration == nil || *e.Duration == 0 {
		return false
	}
	if !isMainThread(e) {
		return false
	}
	return hasTBTCategory(e.Category) || hasTBTTaskType(e.Name)
}

// DurationMs converts the event duration from microseconds to milliseconds.
func DurationMs(e model.TraceEvent) float64 {
	if e.Duration == nil {
		return 0
	}
	return *e.Duration / 1000
}

// BlockingTime returns the part of the event beyond the long task threshold,
// in milliseconds.
func BlockingTime(e model.TraceEvent) float64 {
	return max(0, DurationMs(e)-LongTaskThresholdMs)
}

func isMainThread(e model.TraceEvent) bool {
	if e.ThreadID != nil && *e.ThreadID == MainThreadID {
		return true
	}
	return strings.Contains(e.Name, "MainThread") ||
		strings.Contains(e.Category, "devtools.timeline")
}

func hasTBTCategory(categories string) bool {
	if categories == "" {
		return false
	}
	for _, c := range strings.Split(categories, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		for _, token := range tbtCategories {
			if strings.Contains(c, token) {
				return true
			}
		}
	}
	return false
}

func hasTBTTaskType(name string) bool {
	if name == "" {
		return false
	}
	name = strings.ToLower(name)
	for _, token := range tbtTaskTypes {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

func lower(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = strings.ToLower(v)
	}
	return out
}

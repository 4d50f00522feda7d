package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/aggregate"
	"github.com/lucastaliberti/analyze-chrome-trace/internal/analyze"
)

const defaultWidth = 100

var printer = message.NewPrinter(language.English)

// terminalWidth returns the width of w when it is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

func printResult(w io.Writer, result *analyze.Result) {
	for _, rr := range result.Runs {
		printer.Fprintf(w, "run %d: %s: %d events, %d qualifying, %d tasks (%d with long tasks)\n",
			rr.Run, rr.Input, rr.Events, rr.Qualifying, rr.Tasks, rr.LongTasks)
	}
	state := "unchanged"
	if result.Written {
		state = "written"
	}
	printer.Fprintf(w, "%s %s: %d runs, %d tasks\n", result.Output, state, result.Total, result.Rows)
}

// printSummary lists the most frequent categories and names seen in one
// trace. Only the top entries of each table are shown.
func printSummary(w io.Writer, rr analyze.RunResult, top, width int) {
	if rr.Summary == nil {
		return
	}
	s := rr.Summary

	printer.Fprintf(w, "== %s (run %d): %d events, %d qualifying\n", rr.Input, rr.Run, s.Events, s.Qualifying)
	printTable(w, "Categories", s.Categories, top, width)
	printTable(w, "Event names", s.Names, top, width)
	printTable(w, "Qualifying task names", s.QualifyingNames, top, width)
}

func printTable(w io.Writer, title string, counts []aggregate.Count, top, width int) {
	fmt.Fprintf(w, "%s (%d distinct)\n", title, len(counts))
	if len(counts) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}

	shown := counts
	if top > 0 && len(shown) > top {
		shown = shown[:top]
	}

	numbers := make([]string, len(shown))
	numWidth := 0
	for i, c := range shown {
		numbers[i] = printer.Sprintf("%d", c.Count)
		numWidth = max(numWidth, len(numbers[i]))
	}

	// "  " + value + "  " + count
	valueWidth := max(width-numWidth-4, 10)
	for i, c := range shown {
		value := runewidth.Truncate(c.Value, valueWidth, "…")
		fmt.Fprintf(w, "  %s  %*s\n", runewidth.FillRight(value, valueWidth), numWidth, numbers[i])
	}
	if rest := len(counts) - len(shown); rest > 0 {
		fmt.Fprintf(w, "  … %d more\n", rest)
	}
}

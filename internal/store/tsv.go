package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lucastaliberti/analyze-chrome-trace/internal/report"
)

// Fixed leading columns of the report header.
const ReportTSVFixedHeader = "Task Name\tURL\tCategory\tHas Long Tasks"

// Absent is the cell value for a task that did not occur in a run.
const Absent = "-1"

const (
	fixedColumns  = 4
	columnsPerRun = 3
)

// RunHeader returns the three column labels of run n (1-based).
func RunHeader(n int) string {
	return fmt.Sprintf("Run %d (Blocking Time)\tRun %d (Total Duration)\tRun %d (Occurrences)", n, n, n)
}

// Header returns the full header line for a report with the given number of runs.
func Header(runs int) string {
	var b strings.Builder
	b.WriteString(ReportTSVFixedHeader)
	for n := 1; n <= runs; n++ {
		b.WriteByte('\t')
		b.WriteString(RunHeader(n))
	}
	return b.String()
}

// Marshal serializes a report to TSV with a trailing newline. A report with
// no header serializes to the empty string. Tabs and newlines inside task
// names or URLs are written as-is.
func Marshal(r *report.Report) string {
	if r.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(Header(r.Runs))
	b.WriteByte('\n')
	for _, row := range r.Rows {
		b.WriteString(MarshalRow(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// MarshalRow serializes one report row to a TSV line.
func MarshalRow(row report.Row) string {
	fields := make([]string, 0, fixedColumns+columnsPerRun*len(row.Runs))
	fields = append(fields, row.Name, row.URL, row.Category, yesNo(row.HasLongTasks))
	for _, m := range row.Runs {
		if m == nil {
			fields = append(fields, Absent, Absent, Absent)
			continue
		}
		fields = append(fields,
			formatMs(m.BlockingTime),
			formatMs(m.TotalDuration),
			strconv.Itoa(m.Occurrences),
		)
	}
	return strings.Join(fields, "\t")
}

// Unmarshal parses TSV text into a report. Empty text yields an empty
// report. Any deviation from the layout Marshal produces is rejected with
// report.ErrMalformed.
func Unmarshal(text string) (*report.Report, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return &report.Report{}, nil
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	runs, err := parseHeader(lines[0])
	if err != nil {
		return nil, fmt.Errorf("line 1: %w", err)
	}

	r := &report.Report{Runs: runs}
	for i, line := range lines[1:] {
		if line == "" {
			continue
		}
		row, err := UnmarshalRow(line, runs)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		r.Rows = append(r.Rows, row)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// UnmarshalRow parses a TSV line of a report with the given number of runs.
func UnmarshalRow(line string, runs int) (report.Row, error) {
	fields := strings.Split(line, "\t")
	want := fixedColumns + columnsPerRun*runs
	if len(fields) != want {
		return report.Row{}, fmt.Errorf("%w: expected %d fields, got %d", report.ErrMalformed, want, len(fields))
	}

	hasLong, err := parseYesNo(fields[3])
	if err != nil {
		return report.Row{}, err
	}

	row := report.Row{
		Name:         fields[0],
		URL:          fields[1],
		Category:     fields[2],
		HasLongTasks: hasLong,
		Runs:         make([]*report.Metrics, runs),
	}

	for n := 0; n < runs; n++ {
		cells := fields[fixedColumns+columnsPerRun*n : fixedColumns+columnsPerRun*(n+1)]
		m, err := parseRun(cells)
		if err != nil {
			return report.Row{}, fmt.Errorf("run %d: %w", n+1, err)
		}
		row.Runs[n] = m
	}
	return row, nil
}

// ReadReport loads the report at path together with its raw content. A
// missing file is an empty report.
func ReadReport(path string) (*report.Report, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &report.Report{}, "", nil
		}
		return nil, "", fmt.Errorf("read report: %w", err)
	}

	r, err := Unmarshal(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return r, string(data), nil
}

// WriteIfChanged writes content to path unless it equals previous. It
// reports whether the file was written.
func WriteIfChanged(path, content, previous string) (bool, error) {
	if content == previous {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := atomicWriteFile(path, []byte(content)); err != nil {
		return false, fmt.Errorf("write report: %w", err)
	}
	return true, nil
}

// atomicWriteFile writes data to a temp file then renames it over path.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func parseHeader(line string) (int, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < fixedColumns {
		return 0, fmt.Errorf("%w: header has %d columns, need at least %d", report.ErrMalformed, len(fields), fixedColumns)
	}
	if (len(fields)-fixedColumns)%columnsPerRun != 0 {
		return 0, fmt.Errorf("%w: header has %d run columns, not a multiple of %d",
			report.ErrMalformed, len(fields)-fixedColumns, columnsPerRun)
	}
	runs := (len(fields) - fixedColumns) / columnsPerRun
	if want := Header(runs); line != want {
		return 0, fmt.Errorf("%w: unexpected header %q", report.ErrMalformed, line)
	}
	return runs, nil
}

func parseRun(cells []string) (*report.Metrics, error) {
	absent := 0
	for _, c := range cells {
		if c == Absent {
			absent++
		}
	}
	switch absent {
	case columnsPerRun:
		return nil, nil
	case 0:
	default:
		return nil, fmt.Errorf("%w: partially absent run %q", report.ErrMalformed, strings.Join(cells, "\t"))
	}

	blocking, err := strconv.ParseFloat(cells[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid blocking time: %v", report.ErrMalformed, err)
	}
	total, err := strconv.ParseFloat(cells[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid total duration: %v", report.ErrMalformed, err)
	}
	occurrences, err := strconv.Atoi(cells[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid occurrences: %v", report.ErrMalformed, err)
	}
	return &report.Metrics{
		BlockingTime:  blocking,
		TotalDuration: total,
		Occurrences:   occurrences,
	}, nil
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func parseYesNo(s string) (bool, error) {
	switch s {
	case "Yes":
		return true, nil
	case "No":
		return false, nil
	default:
		return false, fmt.Errorf("%w: Has Long Tasks must be Yes or No, got %q", report.ErrMalformed, s)
	}
}

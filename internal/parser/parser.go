package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"

	"github.com/go-viper/mapstructure/v2"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

var (
	// ErrInputMissing is returned when the trace file does not exist.
	ErrInputMissing = errors.New("trace file not found")
	// ErrMalformedInput is returned when the trace is not valid JSON.
	ErrMalformedInput = errors.New("invalid JSON in trace")
	// ErrInvalidFormat is returned when the JSON is neither an event array
	// nor an object carrying a traceEvents array.
	ErrInvalidFormat = errors.New("invalid trace format")
)

// rawEvent mirrors one entry of the Trace Event Format. Every field is
// decoded loosely: a field of the wrong type is treated as absent rather
// than failing the whole trace.
type rawEvent struct {
	Phase    any `json:"ph"`
	Duration any `json:"dur"`
	Name     any `json:"name"`
	Category any `json:"cat"`
	ThreadID any `json:"tid"`
	Args     any `json:"args"`
}

// traceObject is the object form: {"traceEvents": [...], "metadata": {...}}.
type traceObject struct {
	TraceEvents *[]rawEvent `json:"traceEvents"`
}

type eventArgs struct {
	Data struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"data"`
}

var gzipMagic = []byte{0x1f, 0x8b}

// ReadTraceFile reads a trace from disk. Gzip-compressed files are
// decompressed transparently.
func ReadTraceFile(path string) ([]model.TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
		}
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	events, err := ParseTrace(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// ReadTraceFiles reads several traces concurrently. Results are returned in
// the order of paths; the first failure cancels the remaining reads.
func ReadTraceFiles(ctx context.Context, paths []string) ([][]model.TraceEvent, error) {
	results := make([][]model.TraceEvent, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			events, err := ReadTraceFile(path)
			if err != nil {
				return err
			}
			results[i] = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ParseTrace decodes a trace in either supported shape into a flat event
// sequence.
func ParseTrace(r io.Reader) ([]model.TraceEvent, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return parseTraceBytes(data)
}

func parseTraceBytes(data []byte) ([]model.TraceEvent, error) {
	var doc json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	doc = bytes.TrimSpace(doc)

	var raw []rawEvent
	switch doc[0] {
	case '[':
		if err := json.Unmarshal(doc, &raw); err != nil {
			return nil, shapeError(err)
		}
	case '{':
		var obj traceObject
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, shapeError(err)
		}
		if obj.TraceEvents == nil {
			return nil, fmt.Errorf("%w: object has no traceEvents array", ErrInvalidFormat)
		}
		raw = *obj.TraceEvents
	default:
		return nil, ErrInvalidFormat
	}

	events := make([]model.TraceEvent, 0, len(raw))
	for _, r := range raw {
		events = append(events, toEvent(r))
	}
	return events, nil
}

func shapeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return fmt.Errorf("%w: %w", ErrMalformedInput, err)
}

func toEvent(r rawEvent) model.TraceEvent {
	e := model.TraceEvent{
		Phase:    str(r.Phase),
		Name:     str(r.Name),
		Category: str(r.Category),
	}
	if args, ok := r.Args.(map[string]any); ok {
		e.URL = argsURL(args)
	}
	if d, ok := number(r.Duration); ok {
		e.Duration = &d
	}
	if t, ok := number(r.ThreadID); ok {
		tid := int64(t)
		e.ThreadID = &tid
	}
	return e
}

// argsURL pulls args.data.url out of the free-form args map. Anything that
// does not decode cleanly yields no URL.
func argsURL(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	if _, ok := args["data"]; !ok {
		return ""
	}
	var a eventArgs
	if err := mapstructure.Decode(args, &a); err != nil {
		return ""
	}
	return a.Data.URL
}

// str returns v when it is a JSON string and "" otherwise.
func str(v any) string {
	s, _ := v.(string)
	return s
}

// number accepts JSON numbers (decoded as float64) and ignores everything
// else, including numeric strings.
func number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

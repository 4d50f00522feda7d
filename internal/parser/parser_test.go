package parser

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func TestReadTraceFile(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		events, err := ReadTraceFile(testdataPath("array_trace.json"))
		require.NoError(t, err)
		require.Len(t, events, 4)

		e0 := events[0]
		assert.Equal(t, "X", e0.Phase)
		assert.Equal(t, "EvaluateScript", e0.Name)
		assert.Equal(t, "devtools.timeline,v8", e0.Category)
		require.NotNil(t, e0.Duration)
		assert.Equal(t, 150000.0, *e0.Duration)
		require.NotNil(t, e0.ThreadID)
		assert.Equal(t, int64(1), *e0.ThreadID)
		assert.Equal(t, "https://example.com/app.js", e0.URL)

		assert.Nil(t, events[1].Duration, "B events carry no duration")
		require.NotNil(t, events[2].Duration)
		assert.Equal(t, 12.5, *events[2].Duration)
		assert.Nil(t, events[3].ThreadID)
		assert.Empty(t, events[3].URL, "args without data yield no URL")
	})

	t.Run("object with traceEvents", func(t *testing.T) {
		events, err := ReadTraceFile(testdataPath("object_trace.json"))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "FunctionCall", events[0].Name)
		assert.Equal(t, "https://example.com/vendor.js", events[0].URL)
		assert.Empty(t, events[1].URL)
	})

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nope.json")
		_, err := ReadTraceFile(path)
		require.ErrorIs(t, err, ErrInputMissing)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("truncated JSON", func(t *testing.T) {
		_, err := ReadTraceFile(testdataPath("truncated.json"))
		require.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("traceEvents is not an array", func(t *testing.T) {
		_, err := ReadTraceFile(testdataPath("bad_shape.json"))
		require.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestParseTraceShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{name: "empty array", input: "[]", want: 0},
		{name: "empty traceEvents", input: `{"traceEvents": []}`, want: 0},
		{name: "leading whitespace", input: "\n\t  [{\"ph\":\"X\"}]", want: 1},
		{name: "null entries tolerated", input: `[null, {"ph":"X"}]`, want: 2},
		{name: "object without traceEvents", input: `{"events": []}`, wantErr: ErrInvalidFormat},
		{name: "string", input: `"trace"`, wantErr: ErrInvalidFormat},
		{name: "number", input: `42`, wantErr: ErrInvalidFormat},
		{name: "null", input: `null`, wantErr: ErrInvalidFormat},
		{name: "array of numbers", input: `[1, 2, 3]`, wantErr: ErrInvalidFormat},
		{name: "not JSON", input: `not json at all`, wantErr: ErrMalformedInput},
		{name: "empty input", input: ``, wantErr: ErrMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseTrace(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}
}

func TestParseTraceLooseFields(t *testing.T) {
	input := `[
		{"ph":"X","dur":"150000","tid":"1","name":"EvaluateScript"},
		{"ph":"X","dur":60000,"tid":1,"args":{"data":{"url":42}}},
		{"ph":"X","dur":60000,"tid":1,"args":{"data":"opaque"}}
	]`

	events, err := ParseTrace(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Nil(t, events[0].Duration, "numeric strings are not durations")
	assert.Nil(t, events[0].ThreadID)
	assert.Empty(t, events[1].URL, "non-string URL is ignored")
	assert.Empty(t, events[2].URL)
}

func TestParseTraceMistypedFieldsKeepTrace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, e model.TraceEvent)
	}{
		{
			name:  "args is an array",
			input: `[{"ph":"X","dur":60000,"tid":1,"name":"EvaluateScript","args":[]}]`,
			check: func(t *testing.T, e model.TraceEvent) {
				assert.Equal(t, "EvaluateScript", e.Name)
				assert.Empty(t, e.URL)
			},
		},
		{
			name:  "name is a number",
			input: `[{"ph":"X","dur":60000,"tid":1,"name":7,"cat":"devtools.timeline"}]`,
			check: func(t *testing.T, e model.TraceEvent) {
				assert.Empty(t, e.Name)
				assert.Equal(t, "devtools.timeline", e.Category)
			},
		},
		{
			name:  "phase and category are objects",
			input: `{"traceEvents":[{"ph":{},"cat":[1],"dur":60000,"tid":1,"name":"EvaluateScript"}]}`,
			check: func(t *testing.T, e model.TraceEvent) {
				assert.Empty(t, e.Phase)
				assert.Empty(t, e.Category)
				assert.Equal(t, "EvaluateScript", e.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := `{"ph":"X","dur":150000,"tid":1,"name":"EvaluateScript","args":{"data":{"url":"https://a.test/app.js"}}}`
			input := tt.input
			if strings.HasPrefix(input, "[") {
				input = "[" + valid + "," + input[1:]
			} else {
				input = strings.Replace(input, `"traceEvents":[`, `"traceEvents":[`+valid+",", 1)
			}

			events, err := ParseTrace(strings.NewReader(input))
			require.NoError(t, err)
			require.Len(t, events, 2)

			assert.Equal(t, "X", events[0].Phase)
			assert.Equal(t, "https://a.test/app.js", events[0].URL)
			require.NotNil(t, events[0].Duration)
			assert.Equal(t, 150000.0, *events[0].Duration)
			tt.check(t, events[1])
		})
	}
}

func TestParseTraceGzip(t *testing.T) {
	plain, err := os.ReadFile(testdataPath("array_trace.json"))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "trace.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	fromGzip, err := ReadTraceFile(path)
	require.NoError(t, err)
	fromPlain, err := ReadTraceFile(testdataPath("array_trace.json"))
	require.NoError(t, err)

	assert.Equal(t, fromPlain, fromGzip)
}

func TestReadTraceFiles(t *testing.T) {
	paths := []string{
		testdataPath("object_trace.json"),
		testdataPath("array_trace.json"),
	}

	results, err := ReadTraceFiles(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, results[0], 2, "results keep input order")
	assert.Len(t, results[1], 4)
}

func TestReadTraceFilesFailure(t *testing.T) {
	paths := []string{
		testdataPath("array_trace.json"),
		filepath.Join(t.TempDir(), "missing.json"),
		testdataPath("object_trace.json"),
	}

	results, err := ReadTraceFiles(context.Background(), paths)
	require.ErrorIs(t, err, ErrInputMissing)
	assert.Nil(t, results)
}

func TestReadTraceFilesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadTraceFiles(ctx, []string{testdataPath("array_trace.json")})
	require.ErrorIs(t, err, context.Canceled)
}

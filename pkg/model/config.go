package model

// Config holds runtime configuration for a single analysis invocation.
type Config struct {
	Inputs    []string // Trace files, one run each, merged in order
	Output    string   // Report file (TSV)
	Debug     bool     // Print category/name frequencies
	Top       int      // Rows per table in the debug listing
	Lock      bool     // Guard the report with a PID lock file
	LogFormat string   // "text" or "json"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Top:       25,
		Lock:      true,
		LogFormat: "text",
	}
}

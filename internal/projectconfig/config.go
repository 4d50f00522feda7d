// Package projectconfig loads the optional .tbtreport.yaml project file.
package projectconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/lucastaliberti/analyze-chrome-trace/pkg/model"
)

// FileName is the project configuration file looked up from the working
// directory upwards.
const FileName = ".tbtreport.yaml"

const maxLevels = 10

// ErrInvalid is returned when the file does not match the schema.
var ErrInvalid = errors.New("invalid project config")

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "output":     {"type": "string", "minLength": 1},
    "debug_top":  {"type": "integer", "minimum": 1},
    "lock":       {"type": "boolean"},
    "log_format": {"enum": ["text", "json"]}
  }
}`

var (
	schema  = mustCompileSchema(schemaJSON, "tbtreport.schema.json")
	printer = message.NewPrinter(language.English)
)

// ProjectConfig mirrors .tbtreport.yaml. Unset fields keep their defaults.
type ProjectConfig struct {
	Output    string `yaml:"output,omitempty"`
	DebugTop  int    `yaml:"debug_top,omitempty"`
	Lock      *bool  `yaml:"lock,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

// Apply overlays the file values onto cfg.
func (p *ProjectConfig) Apply(cfg *model.Config) {
	if p == nil {
		return
	}
	if p.Output != "" {
		cfg.Output = p.Output
	}
	if p.DebugTop != 0 {
		cfg.Top = p.DebugTop
	}
	if p.Lock != nil {
		cfg.Lock = *p.Lock
	}
	if p.LogFormat != "" {
		cfg.LogFormat = p.LogFormat
	}
}

// Load finds .tbtreport.yaml by walking up from startDir and decodes it.
// A missing file yields a nil config and no error. Relative output paths
// are resolved against the directory holding the file.
func Load(startDir string) (*ProjectConfig, error) {
	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(filepath.Dir(path), cfg.Output)
	}
	return cfg, nil
}

// Parse validates raw YAML against the config schema and decodes it.
func Parse(data []byte) (*ProjectConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if doc == nil {
		return &ProjectConfig{}, nil
	}
	if errs := validate(doc); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// findConfigFile walks up from dir looking for the config file. Returns
// os.ErrNotExist if none is found within maxLevels.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < maxLevels; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

func validate(doc any) []string {
	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

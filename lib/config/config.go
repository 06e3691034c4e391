package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/vardex/vardex/lib/annparse"
	"github.com/vardex/vardex/lib/varapi"
)

type Config struct {
	Import      Import      `yaml:"import"`
	Query       Query       `yaml:"query"`
	Annotations Annotations `yaml:"annotations"`
}

type Import struct {
	BatchSize    int `yaml:"batch_size"`
	ParseWorkers int `yaml:"parse_workers"`
	MaxLineBytes int `yaml:"max_line_bytes"`

	// Sample names forming the case and control groups; when both are
	// set the importer computes per-group genotype tallies.
	CaseSamples    []string `yaml:"case_samples"`
	ControlSamples []string `yaml:"control_samples"`
}

type Query struct {
	DefaultLimit int `yaml:"default_limit"`
}

type Annotations struct {
	// Header is a pipe-delimited annotation header registered before
	// import, for readers that carry raw annotation strings.
	Header string `yaml:"header"`

	// Schema entries override or extend the built-in SnpEff table,
	// keyed by raw header token.
	Schema map[string]annparse.FieldSpec `yaml:"schema"`
}

func (c *Config) setDefaults() error {
	if c.Import.BatchSize == 0 {
		c.Import.BatchSize = 500
	}
	if c.Import.ParseWorkers == 0 {
		c.Import.ParseWorkers = 4
	}
	if c.Import.MaxLineBytes == 0 {
		c.Import.MaxLineBytes = 1024 * 1024
	}
	if c.Query.DefaultLimit == 0 {
		c.Query.DefaultLimit = varapi.DefaultLimit
	}

	return nil
}

func (c Config) Validate() error {
	var result *multierror.Error

	if c.Import.BatchSize < 1 {
		result = multierror.Append(result, fmt.Errorf("import batch_size must be positive, got %d", c.Import.BatchSize))
	}
	if c.Import.ParseWorkers < 1 {
		result = multierror.Append(result, fmt.Errorf("import parse_workers must be positive, got %d", c.Import.ParseWorkers))
	}
	if c.Query.DefaultLimit < 1 {
		result = multierror.Append(result, fmt.Errorf("query default_limit must be positive, got %d", c.Query.DefaultLimit))
	}

	caseSamples := map[string]bool{}
	for _, name := range c.Import.CaseSamples {
		caseSamples[name] = true
	}
	for _, name := range c.Import.ControlSamples {
		if caseSamples[name] {
			result = multierror.Append(result, fmt.Errorf("sample %q is both case and control", name))
		}
	}

	for token, spec := range c.Annotations.Schema {
		if spec.OutputName == "" {
			result = multierror.Append(result, fmt.Errorf("annotation schema entry %q has no name", token))
		}
		switch spec.Category {
		case varapi.CategoryVariant, varapi.CategoryInfo, varapi.CategorySample, varapi.CategoryAnnotation:
		default:
			result = multierror.Append(result, fmt.Errorf("annotation schema entry %q has unknown category %q", token, spec.Category))
		}
		switch spec.Type {
		case varapi.TypeString, varapi.TypeInt, varapi.TypeFloat, varapi.TypeBool:
		default:
			result = multierror.Append(result, fmt.Errorf("annotation schema entry %q has unknown type %q", token, spec.Type))
		}
	}

	return result.ErrorOrNil()
}

// AnnotationSchema merges the configured schema entries over the
// built-in SnpEff table. With no entries it returns nil, letting the
// parser use its default.
func (c Config) AnnotationSchema() annparse.Schema {
	if len(c.Annotations.Schema) == 0 {
		return nil
	}

	merged := annparse.Schema{}
	for token, spec := range annparse.SnpEffSchema() {
		merged[token] = spec
	}
	for token, spec := range c.Annotations.Schema {
		merged[strings.ToLower(token)] = spec
	}

	return merged
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	var config Config
	_ = config.setDefaults()
	return &config
}

func Load(filenameOrData string) (*Config, error) {
	var config Config

	var data []byte

	if strings.HasPrefix(filenameOrData, "{") {
		data = []byte(filenameOrData)
	} else {
		content, err := os.ReadFile(filenameOrData)
		if err != nil {
			return nil, err
		}
		data = content
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.setDefaults(); err != nil {
		return nil, fmt.Errorf("error setting defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	return &config, nil
}

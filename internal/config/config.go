package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/logging"
	"github.com/oblique/memsec/internal/metrics"
)

// DefaultPath is the configuration file read when --config is not given.
const DefaultPath = "memsec.yaml"

// MaxSoakSize bounds soak.max_size.
const MaxSoakSize = 1 << 30

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition

	// Overrides layers bound flags and MEMSEC_* environment variables over
	// the file. Keys use the YAML paths, e.g. soak.workers.
	Overrides *viper.Viper
}

// NewOverrides returns a viper instance reading MEMSEC_* variables, where
// MEMSEC_SOAK_MAX_SIZE maps to soak.max_size.
func NewOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MEMSEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Definition represents the memsec.yaml structure
type Definition struct {
	Version int           `yaml:"version"`
	Metrics MetricsConfig `yaml:"metrics"`
	Soak    SoakConfig    `yaml:"soak"`
	Bench   BenchConfig   `yaml:"bench"`
}

// MetricsConfig controls the Prometheus endpoint served during soak runs
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// SoakConfig drives the allocator stress run
type SoakConfig struct {
	Workers  int           `yaml:"workers"`
	MinSize  int           `yaml:"min_size"`
	MaxSize  int           `yaml:"max_size"`
	Duration time.Duration `yaml:"duration"`
}

// BenchConfig sizes the comparison timing run
type BenchConfig struct {
	Size       int `yaml:"size"`
	Iterations int `yaml:"iterations"`
}

// Default returns the definition used when no file is present.
func Default() *Definition {
	m := metrics.DefaultServerConfig()
	return &Definition{
		Version: 0,
		Metrics: MetricsConfig{
			Enabled: m.Enabled,
			Addr:    m.Addr,
			Path:    m.Path,
		},
		Soak: SoakConfig{
			Workers:  runtime.NumCPU(),
			MinSize:  0,
			MaxSize:  8192,
			Duration: 10 * time.Second,
		},
		Bench: BenchConfig{
			Size:       1025,
			Iterations: 100000,
		},
	}
}

// Load reads and parses the memsec.yaml file. A missing file at DefaultPath
// yields the defaults; a missing file named explicitly is an error.
func (c *Config) Load() error {
	def := Default()

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) && c.Path == DefaultPath {
			if c.Logger != nil {
				c.Logger.Debug("No %s found, using defaults", DefaultPath)
			}
			return c.finish(def)
		}
		if os.IsNotExist(err) {
			return mserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Check the --config path or omit it to use defaults",
			}
		}
		return mserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := validateSchema(data); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, def); err != nil {
		return yamlError(err)
	}

	return c.finish(def)
}

func yamlError(err error) error {
	return mserrors.ConfigError{
		Message:    "invalid YAML syntax in configuration file: " + err.Error(),
		Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Durations take units, e.g. 30s",
	}
}

func (c *Config) finish(def *Definition) error {
	if c.Overrides != nil {
		applyOverrides(c.Overrides, def)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	c.Definition = def
	return nil
}

func applyOverrides(v *viper.Viper, d *Definition) {
	ints := map[string]*int{
		"soak.workers":     &d.Soak.Workers,
		"soak.min_size":    &d.Soak.MinSize,
		"soak.max_size":    &d.Soak.MaxSize,
		"bench.size":       &d.Bench.Size,
		"bench.iterations": &d.Bench.Iterations,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	strs := map[string]*string{
		"metrics.addr": &d.Metrics.Addr,
		"metrics.path": &d.Metrics.Path,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet("metrics.enabled") {
		d.Metrics.Enabled = v.GetBool("metrics.enabled")
	}
	if v.IsSet("soak.duration") {
		d.Soak.Duration = v.GetDuration("soak.duration")
	}
}

// Validate checks field ranges and returns the first problem found.
func (d *Definition) Validate() error {
	if d.Version != 0 {
		return mserrors.ConfigError{
			Field:      "version",
			Value:      d.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your memsec.yaml file",
		}
	}

	if d.Metrics.Enabled && d.Metrics.Addr == "" {
		return mserrors.ConfigError{
			Field:      "metrics.addr",
			Message:    "required when metrics are enabled",
			Suggestion: "Use a listen address such as 127.0.0.1:9090",
		}
	}
	if !strings.HasPrefix(d.Metrics.Path, "/") {
		return mserrors.ConfigError{
			Field:      "metrics.path",
			Value:      d.Metrics.Path,
			Message:    "must be an absolute URL path",
			Suggestion: "Use /metrics",
		}
	}

	if d.Soak.Workers < 1 {
		return mserrors.ConfigError{
			Field:   "soak.workers",
			Value:   d.Soak.Workers,
			Message: "must be at least 1",
		}
	}
	if d.Soak.MinSize < 0 || d.Soak.MaxSize < d.Soak.MinSize {
		return mserrors.ConfigError{
			Field:      "soak.max_size",
			Value:      d.Soak.MaxSize,
			Message:    "size range is empty or negative",
			Suggestion: "Use 0 <= min_size <= max_size",
		}
	}
	if d.Soak.MaxSize > MaxSoakSize {
		return mserrors.ConfigError{
			Field:      "soak.max_size",
			Value:      d.Soak.MaxSize,
			Message:    fmt.Sprintf("must not exceed %d", MaxSoakSize),
			Suggestion: "Soak blocks are allocated and filled many times a second; keep them small",
		}
	}
	if d.Soak.Duration <= 0 {
		return mserrors.ConfigError{
			Field:   "soak.duration",
			Value:   d.Soak.Duration,
			Message: "must be positive",
		}
	}

	if d.Bench.Size < 1 {
		return mserrors.ConfigError{
			Field:   "bench.size",
			Value:   d.Bench.Size,
			Message: "must be at least 1",
		}
	}
	if d.Bench.Iterations < 1 {
		return mserrors.ConfigError{
			Field:   "bench.iterations",
			Value:   d.Bench.Iterations,
			Message: "must be at least 1",
		}
	}

	return nil
}

// MetricsServer returns the metrics server settings for this definition.
func (d *Definition) MetricsServer() metrics.ServerConfig {
	sc := metrics.DefaultServerConfig()
	sc.Enabled = d.Metrics.Enabled
	sc.Addr = d.Metrics.Addr
	sc.Path = d.Metrics.Path
	return sc
}

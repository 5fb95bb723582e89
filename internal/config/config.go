// Package config loads process configuration for the yarl binaries.
//
// Precedence: defaults, then the YAML file, then YARL_* environment variables.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("yarl.yaml").
//	    Load()
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "YARL"

type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Buffer   BufferConfig   `yaml:"buffer" env:"BUFFER"`
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
	Worker   WorkerConfig   `yaml:"worker" env:"WORKER"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxBodyBytes caps request bodies accepted by /validate and /enqueue.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// BufferConfig configures the replay-buffer service. When AgentConfig is set
// its memory_spec capacity wins over Capacity.
type BufferConfig struct {
	Addr        string `yaml:"addr" env:"ADDR"`
	AgentConfig string `yaml:"agent_config" env:"AGENT_CONFIG"`
	Capacity    int    `yaml:"capacity" env:"CAPACITY"`
	Policy      string `yaml:"policy" env:"POLICY"`
	Seed        int64  `yaml:"seed" env:"SEED"`
}

type RegistryConfig struct {
	// Path of the sqlite database; empty disables report storage.
	Path string `yaml:"path" env:"PATH"`
}

type LogConfig struct {
	Level       string   `yaml:"level" env:"LEVEL"`
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

type WorkerConfig struct {
	ID                string        `yaml:"id" env:"ID"`
	BufferURL         string        `yaml:"buffer_url" env:"BUFFER_URL"`
	AgentConfig       string        `yaml:"agent_config" env:"AGENT_CONFIG"`
	NumEnvs           int           `yaml:"num_envs" env:"NUM_ENVS"`
	BatchesPerRequest int           `yaml:"batches_per_request" env:"BATCHES_PER_REQUEST"`
	Seed              int64         `yaml:"seed" env:"SEED"`
	Backoff           time.Duration `yaml:"backoff" env:"BACKOFF"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":9000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      8 << 20,
		},
		Buffer: BufferConfig{
			Addr:     ":9001",
			Capacity: 10000,
			Policy:   "fifo",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Worker: WorkerConfig{
			BufferURL:         "http://localhost:9001",
			NumEnvs:           4,
			BatchesPerRequest: 4,
			Backoff:           500 * time.Millisecond,
		},
	}
}

// Loader builds a Config from defaults, an optional YAML file and the environment.
type Loader struct {
	configPath string
	envPrefix  string
	lookup     func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix, lookup: os.LookupEnv}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookup replaces os.LookupEnv.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
		}
	}

	if err := l.setFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	var errs error
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			errs = multierr.Append(errs, l.setFromEnv(field, key))
			continue
		}
		value, ok := l.lookup(key)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errs
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

var errInvalid = errors.New("invalid config")

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	bad := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{errInvalid}, args...)...))
	}

	if c.Server.ReadHeaderTimeout <= 0 {
		bad("server.read_header_timeout must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		bad("server.max_body_bytes must be positive")
	}
	if c.Buffer.Capacity <= 0 {
		bad("buffer.capacity must be positive, got %d", c.Buffer.Capacity)
	}
	switch c.Buffer.Policy {
	case "fifo", "freshness":
	default:
		bad("buffer.policy must be fifo or freshness, got %q", c.Buffer.Policy)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		bad("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Worker.NumEnvs <= 0 {
		bad("worker.num_envs must be positive, got %d", c.Worker.NumEnvs)
	}
	if c.Worker.BatchesPerRequest <= 0 {
		bad("worker.batches_per_request must be positive, got %d", c.Worker.BatchesPerRequest)
	}
	return errs
}

// IsInvalid reports whether err came from Validate.
func IsInvalid(err error) bool {
	return errors.Is(err, errInvalid)
}

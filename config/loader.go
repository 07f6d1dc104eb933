package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables gateline reads, e.g.
	// GATELINE_SERVER_PORT.
	EnvPrefix = "GATELINE_"
	// Delimiter separates nested keys: "saga.reserve_retries".
	Delimiter = "."
)

// Loader layers gateline's configuration sources into one koanf tree.
// Later layers win: defaults, then the config file, then GATELINE_* env
// vars, then explicit overrides from the command line.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader returns an empty loader. Load does the actual layering.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load assembles the configuration and validates it. An empty configPath
// makes Load try the standard locations instead of failing.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		l.loadFirstStandardFile()
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	// A file that sets only part of a section replaces the whole nested
	// map in koanf, so keys it left out vanish. Re-seed those from the
	// defaults before unmarshaling.
	if err := l.restoreMissingDefaults(); err != nil {
		return nil, fmt.Errorf("failed to fill defaults: %w", err)
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	d := DefaultConfig()
	return l.k.Load(confmap.Provider(map[string]interface{}{
		"app":       d.App,
		"server":    d.Server,
		"log":       d.Log,
		"saga":      d.Saga,
		"inventory": d.Inventory,
		"storage":   d.Storage,
		"ticketing": d.Ticketing,
		"mail":      d.Mail,
		"metrics":   d.Metrics,
		"tracing":   d.Tracing,
	}, Delimiter), nil)
}

func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}
	return l.k.Load(file.Provider(path), parser)
}

// loadFirstStandardFile tries the conventional config locations and loads
// the first one that exists. Absence of all of them is fine; gateline runs
// on defaults plus env vars.
func (l *Loader) loadFirstStandardFile() {
	for _, path := range []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"configs/config.yaml",
		"/etc/gateline/config.yaml",
	} {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path)
			return
		}
	}
}

// loadEnv layers GATELINE_* variables in, lowercased with the prefix
// stripped.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
}

// Get returns the raw value at key, or nil when unset.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString returns the string value at key.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt returns the int value at key.
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool returns the bool value at key.
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// Set writes a single key into the tree.
func (l *Loader) Set(key string, value interface{}) error {
	return l.k.Set(key, value)
}

// restoreMissingDefaults re-applies every default whose key is absent from
// the assembled tree. Keys any source touched are left alone.
func (l *Loader) restoreMissingDefaults() error {
	for key, value := range flattenStruct(DefaultConfig(), "") {
		if l.k.Get(key) != nil {
			continue
		}
		if err := l.k.Set(key, value); err != nil {
			return fmt.Errorf("failed to set default for %s: %w", key, err)
		}
	}
	return nil
}

// flattenStruct walks a config struct and emits dot-separated koanf keys per
// mapstructure tag. Untagged and unexported fields are skipped.
func flattenStruct(v interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return out
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return out
	}

	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + Delimiter + tag
		}

		fv := rv.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			for k, nested := range flattenStruct(fv.Interface(), key) {
				out[k] = nested
			}
		case reflect.Ptr:
			if !fv.IsNil() {
				for k, nested := range flattenStruct(fv.Elem().Interface(), key) {
					out[k] = nested
				}
			}
		case reflect.Slice:
			items := make([]interface{}, fv.Len())
			for j := 0; j < fv.Len(); j++ {
				items[j] = fv.Index(j).Interface()
			}
			out[key] = items
		default:
			// Scalars, durations, and maps go in as their typed values;
			// the mapstructure decode hooks handle them on the way out.
			out[key] = fv.Interface()
		}
	}
	return out
}

// Print renders the assembled tree for debugging.
func (l *Loader) Print() string {
	return l.k.Sprint()
}

// Load builds a one-shot loader and runs it.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie is Load for main(): a broken configuration is not something the
// service can limp along without.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

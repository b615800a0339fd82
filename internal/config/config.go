// Package config loads migrant's layered configuration.
//
// Layers, lowest precedence first:
//
//  1. built-in defaults
//  2. the YAML file (migrant.yaml, or --config), validated against schema.cue
//  3. .env files, loaded into the process environment
//  4. MIGRANT_* environment variables (MIGRANT_STATE__BACKEND sets state.backend)
//  5. explicit overrides, typically CLI flags
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/roach88/migrant/internal/secrets"
)

// DefaultFile is read when no configuration file is given explicitly.
const DefaultFile = "migrant.yaml"

// EnvPrefix marks environment variables that override configuration.
const EnvPrefix = "MIGRANT_"

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"environment":                 "",
		"changes.dir":                 "changes",
		"changes.filter":              "",
		"run.user":                    currentUser(),
		"hash.algorithm":              "sha256",
		"state.backend":               BackendRelational,
		"state.relational.dialect":    "sqlite",
		"state.relational.dsn":        ".migrant/migrant.db",
		"state.relational.catalog":    "",
		"state.relational.schema":     "",
		"state.relational.table":      "change_state",
		"state.flatfile.path":         ".migrant/state-{environment}.csv",
		"state.flatfile.lock_timeout": "10s",
		"lock.enabled":                true,
		"lock.dialect":                "",
		"lock.dsn":                    "",
		"lock.catalog":                "",
		"lock.schema":                 "",
		"lock.table":                  "change_lock",
		"lock.lease":                  "5m",
		"lock.timeout":                "10s",
		"log.level":                   "info",
		"log.format":                  "text",
		"metrics.textfile":            "",
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an explicit configuration file; it must exist.
	File string
	// Dir is searched for DefaultFile and .env files when File is empty.
	Dir string
	// NoFile skips the configuration file entirely.
	NoFile bool
	// EnvFiles are loaded into the process environment when present.
	// Nil means .env and .env.local in Dir.
	EnvFiles []string
	// SkipEnv ignores MIGRANT_* variables.
	SkipEnv bool
	// Overrides is the highest-precedence layer, keyed by dotted path.
	Overrides map[string]any
	// Decoder resolves secret references; nil means secrets.Default().
	Decoder secrets.Decoder
}

// Configuration is a read-only view over the merged layers.
type Configuration struct {
	k       *koanf.Koanf
	decoder secrets.Decoder
	// File is the configuration file that was read, if any.
	File string
}

// Load merges every layer.
func Load(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, &Error{Message: "load defaults", Err: err}
	}

	path, err := configFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		fileK := koanf.New(".")
		if err := fileK.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &Error{Key: path, Message: "read configuration file", Err: err}
		}
		if err := validateFile(path, fileK.Raw()); err != nil {
			return nil, err
		}
		if err := k.Merge(fileK); err != nil {
			return nil, &Error{Key: path, Message: "merge configuration file", Err: err}
		}
	}

	if _, err := LoadEnvFiles(envFiles(opts)); err != nil {
		return nil, &Error{Message: "load .env files", Err: err}
	}

	if !opts.SkipEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, &Error{Message: "load environment", Err: err}
		}
	}

	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, &Error{Message: "apply overrides", Err: err}
		}
	}

	decoder := opts.Decoder
	if decoder == nil {
		decoder = secrets.Default()
	}
	return &Configuration{k: k, decoder: decoder, File: path}, nil
}

// New builds a configuration from the defaults plus values, ignoring files
// and the environment.
func New(values map[string]any) (*Configuration, error) {
	return Load(LoadOptions{
		NoFile:    true,
		EnvFiles:  []string{},
		SkipEnv:   true,
		Overrides: values,
		Decoder:   secrets.Env(func(string) (string, bool) { return "", false }),
	})
}

// envKey maps MIGRANT_STATE__FLATFILE__LOCK_TIMEOUT to
// state.flatfile.lock_timeout.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func configFile(opts LoadOptions) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", &Error{Key: opts.File, Message: "configuration file not found", Err: err}
		}
		return opts.File, nil
	}
	if opts.NoFile {
		return "", nil
	}
	candidate := filepath.Join(opts.Dir, DefaultFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", nil
}

func envFiles(opts LoadOptions) []string {
	if opts.EnvFiles != nil {
		return opts.EnvFiles
	}
	return []string{filepath.Join(opts.Dir, ".env"), filepath.Join(opts.Dir, ".env.local")}
}

// LoadEnvFiles loads the files that exist into the process environment
// without overriding variables that are already set, and returns how many
// were loaded.
func LoadEnvFiles(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Exists reports whether key has a value in any layer.
func (c *Configuration) Exists(key string) bool { return c.k.Exists(key) }

// String returns the value at key, or "" when absent.
func (c *Configuration) String(key string) string { return c.k.String(key) }

// Secret returns the value at key with secret references resolved.
func (c *Configuration) Secret(key string) (string, error) {
	v, err := c.decoder.Decode(c.k.String(key))
	if err != nil {
		return "", &Error{Key: key, Message: "decode secret", Err: err}
	}
	return v, nil
}

// Keys lists the direct children of prefix, sorted.
func (c *Configuration) Keys(prefix string) []string {
	keys := c.k.MapKeys(prefix)
	sort.Strings(keys)
	return keys
}

// Sub returns the configuration below prefix.
func (c *Configuration) Sub(prefix string) *Configuration {
	return &Configuration{k: c.k.Cut(prefix), decoder: c.decoder, File: c.File}
}

// Unmarshal decodes the configuration below prefix ("" for all) into out,
// using koanf struct tags. Duration strings and comma-separated lists are
// converted.
func (c *Configuration) Unmarshal(prefix string, out any) error {
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           out,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := c.k.UnmarshalWithConf(prefix, out, conf); err != nil {
		return &Error{Key: prefix, Message: "decode", Err: err}
	}
	return nil
}

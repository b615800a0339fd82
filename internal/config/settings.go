package config

import (
	"fmt"
	"strings"
	"time"
)

// State backends.
const (
	BackendRelational = "relational"
	BackendFlatFile   = "flat-file"
)

// Settings is the typed view of a Configuration.
type Settings struct {
	Environment string          `koanf:"environment"`
	Changes     ChangesSettings `koanf:"changes"`
	Run         RunSettings     `koanf:"run"`
	Hash        HashSettings    `koanf:"hash"`
	State       StateSettings   `koanf:"state"`
	Lock        LockSettings    `koanf:"lock"`
	Log         LogSettings     `koanf:"log"`
	Metrics     MetricsSettings `koanf:"metrics"`
}

type ChangesSettings struct {
	Dir    string `koanf:"dir"`
	Filter string `koanf:"filter"`
}

type RunSettings struct {
	User string `koanf:"user"`
}

type HashSettings struct {
	Algorithm string `koanf:"algorithm"`
}

type StateSettings struct {
	Backend    string             `koanf:"backend"`
	Relational RelationalSettings `koanf:"relational"`
	FlatFile   FlatFileSettings   `koanf:"flatfile"`
}

// Datasource locates a SQL database.
type Datasource struct {
	Dialect string `koanf:"dialect"`
	DSN     string `koanf:"dsn"`
}

type RelationalSettings struct {
	Datasource `koanf:",squash"`
	Catalog    string          `koanf:"catalog"`
	Schema     string          `koanf:"schema"`
	Table      string          `koanf:"table"`
	Columns    ColumnsSettings `koanf:"columns"`
}

type ColumnSettings struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"`
}

type ColumnsSettings struct {
	ID        ColumnSettings `koanf:"id"`
	Hash      ColumnSettings `koanf:"hash"`
	Timestamp ColumnSettings `koanf:"timestamp"`
	AppliedBy ColumnSettings `koanf:"applied_by"`
}

type FlatFileSettings struct {
	Path        string        `koanf:"path"`
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

type LockSettings struct {
	Enabled    bool `koanf:"enabled"`
	Datasource `koanf:",squash"`
	Catalog    string        `koanf:"catalog"`
	Schema     string        `koanf:"schema"`
	Table      string        `koanf:"table"`
	Lease      time.Duration `koanf:"lease"`
	Timeout    time.Duration `koanf:"timeout"`
}

type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsSettings struct {
	Textfile string `koanf:"textfile"`
}

// Settings decodes and checks the whole configuration. Secret references in
// data source names are resolved, and the lock datasource falls back to the
// state datasource.
func (c *Configuration) Settings() (*Settings, error) {
	var s Settings
	if err := c.Unmarshal("", &s); err != nil {
		return nil, err
	}

	var err error
	if s.State.Relational.DSN, err = c.Secret("state.relational.dsn"); err != nil {
		return nil, err
	}
	if s.Lock.DSN, err = c.Secret("lock.dsn"); err != nil {
		return nil, err
	}
	if s.Lock.Dialect == "" && s.Lock.DSN == "" {
		s.Lock.Datasource = s.State.Relational.Datasource
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	switch s.State.Backend {
	case BackendRelational:
		if s.State.Relational.DSN == "" {
			return &Error{Key: "state.relational.dsn", Message: "required by the relational backend"}
		}
	case BackendFlatFile:
		if s.State.FlatFile.Path == "" {
			return &Error{Key: "state.flatfile.path", Message: "required by the flat-file backend"}
		}
	default:
		return &Error{Key: "state.backend", Message: fmt.Sprintf("unknown backend %q (want %s or %s)",
			s.State.Backend, BackendRelational, BackendFlatFile)}
	}

	switch strings.ToLower(s.Hash.Algorithm) {
	case "sha256", "sha512", "none", "":
	default:
		return &Error{Key: "hash.algorithm", Message: fmt.Sprintf("unknown algorithm %q", s.Hash.Algorithm)}
	}

	if s.Lock.Enabled {
		if s.Lock.DSN == "" {
			return &Error{Key: "lock.dsn", Message: "required when the lock is enabled"}
		}
		if s.Lock.Lease <= 0 {
			return &Error{Key: "lock.lease", Message: "must be positive"}
		}
	}
	if s.Changes.Dir == "" {
		return &Error{Key: "changes.dir", Message: "required value is missing"}
	}
	return nil
}

// FlatFilePath expands {environment} in the configured path.
func (s *Settings) FlatFilePath() string {
	env := s.Environment
	if env == "" {
		env = "default"
	}
	return strings.ReplaceAll(s.State.FlatFile.Path, "{environment}", env)
}

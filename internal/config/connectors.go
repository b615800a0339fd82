package config

import (
	"fmt"

	"github.com/roach88/migrant/internal/connector"
)

// ConnectorResolver resolves connectors.<name> for the connector registry.
//
// An unconfigured connector takes its type from its name, so change files
// using the sql or shell connector need no configuration. A sql connector
// without its own datasource targets the state database.
func (c *Configuration) ConnectorResolver(state Datasource) connector.Resolver {
	return func(name string) (connector.Config, error) {
		prefix := "connectors." + name
		sub := c.Sub(prefix)
		cfg := connector.Config{
			Name:    name,
			Type:    sub.String("type"),
			Dialect: sub.String("dialect"),
			Shell:   sub.String("shell"),
		}
		if cfg.Type == "" {
			cfg.Type = name
		}
		if cfg.Type != connector.TypeSQL && cfg.Type != connector.TypeShell && !c.Exists(prefix) {
			return connector.Config{}, &Error{Key: prefix, Message: fmt.Sprintf("connector %q is not configured (configured: %v)",
				name, c.Keys("connectors"))}
		}

		dsn, err := c.Secret(prefix + ".dsn")
		if err != nil {
			return connector.Config{}, err
		}
		cfg.DSN = dsn

		if cfg.Type == connector.TypeSQL && cfg.DSN == "" && cfg.Dialect == "" {
			cfg.Dialect, cfg.DSN = state.Dialect, state.DSN
		}
		return cfg, nil
	}
}

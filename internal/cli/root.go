package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/migrant/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigFile  string
	ProjectDir  string
	ChangesDir  string
	Environment string
	LogFormat   string
	Sets        []string

	// EngineOptions are appended when the engine is built (for testing).
	EngineOptions []engine.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the migrant CLI.
func NewRootCommand(engineOpts ...engine.Option) *cobra.Command {
	opts := &RootOptions{EngineOptions: engineOpts}

	cmd := &cobra.Command{
		Use:   "migrant",
		Short: "migrant - ordered change application",
		Long: `Apply versioned change files in natural order exactly once, record them
in a state ledger and revert them symmetrically, serialized across hosts by a
lease-based lock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				f := &OutputFormatter{Format: "text", Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
				return fail(f, "invalid flags", NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)), nil)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file (default ./migrant.yaml when present)")
	flags.StringVarP(&opts.ProjectDir, "project-dir", "C", ".", "directory searched for migrant.yaml and .env files")
	flags.StringVar(&opts.ChangesDir, "changes", "", "change catalog root (overrides changes.dir)")
	flags.StringVarP(&opts.Environment, "env", "e", "", "target environment (overrides environment)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json, overrides log.format)")
	flags.StringArrayVar(&opts.Sets, "set", nil, "override a configuration key (key=value, repeatable)")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewRevertCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))

	return cmd
}

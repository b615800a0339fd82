package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/migrant/internal/catalog"
)

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending changes",
		Long: `List the changes apply would run, in execution order. The ledger is read
under the distributed lock so the answer is consistent with concurrent runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			ctx, cancel := s.signalContext(cmd)
			defer cancel()

			changes, err := s.engine.ListPending(ctx, filter)
			if err != nil {
				return fail(s.formatter, "failed to resolve pending changes", err, nil)
			}
			return s.formatter.Success(newPendingView(changes))
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "regular expression over catalog-relative paths")
	return cmd
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the state ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(rootOpts, cmd)
			if err != nil {
				return err
			}
			ctx, cancel := s.signalContext(cmd)
			defer cancel()

			records, err := s.engine.ListState(ctx)
			if err != nil {
				return fail(s.formatter, "failed to read state", err, nil)
			}
			return s.formatter.Success(newStateView(records))
		},
	}
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filter    string
		direction string
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List change files in execution order",
		Long: `List the change files of the catalog in the order they would execute,
without touching the state ledger or the lock.

Example:
  migrant catalog
  migrant catalog --direction revert --env prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			var dir catalog.Direction
			switch direction {
			case "apply":
				dir = catalog.Apply
			case "revert":
				dir = catalog.Revert
			default:
				return fail(f, "invalid flags",
					NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be apply or revert", direction)), nil)
			}

			s, err := open(rootOpts, cmd)
			if err != nil {
				return err
			}
			files, err := s.engine.Catalog(cmd.Context(), dir, filter)
			if err != nil {
				return fail(s.formatter, "failed to scan catalog", err, nil)
			}
			return s.formatter.Success(newCatalogView(direction, files))
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "regular expression over catalog-relative paths")
	cmd.Flags().StringVar(&direction, "direction", "apply", "execution direction (apply|revert)")
	return cmd
}

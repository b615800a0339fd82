package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/migrant/internal/engine"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Filter string
	DryRun bool
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending changes",
		Long: `Apply every pending change in natural order and record it in the state
ledger. The run holds the distributed lock and stops at the first failing
change; changes applied before it stay recorded.

Example:
  migrant apply
  migrant apply --env prod --filter '^2\.'
  migrant apply --dry-run --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "regular expression over catalog-relative paths")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list pending changes without executing them")

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command) error {
	s, err := open(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.finish()
	ctx, cancel := s.signalContext(cmd)
	defer cancel()

	res, err := s.engine.ApplyPending(ctx, engine.ApplyOptions{Filter: opts.Filter, DryRun: opts.DryRun})
	if err != nil {
		var partial any
		if res != nil {
			partial = newApplyView(res)
		}
		return fail(s.formatter, "apply failed", err, partial)
	}
	return s.formatter.Success(newApplyView(res))
}

// RevertOptions holds flags for the revert command.
type RevertOptions struct {
	*RootOptions
	Filter string
	Limit  int
	DryRun bool
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Revert recorded changes",
		Long: `Run the revert change of every recorded change, most recent first, and
remove the reverted changes from the state ledger.

Example:
  migrant revert --limit 1
  migrant revert --filter '^1\.4/' --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "regular expression over catalog-relative paths")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "revert at most this many changes (0 means all)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "list changes that would be reverted")

	return cmd
}

func runRevert(opts *RevertOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return fail(f, "invalid flags", NewExitError(ExitCommandError, "--limit must not be negative"), nil)
	}

	s, err := open(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.finish()
	ctx, cancel := s.signalContext(cmd)
	defer cancel()

	res, err := s.engine.Revert(ctx, engine.RevertOptions{Filter: opts.Filter, Limit: opts.Limit, DryRun: opts.DryRun})
	if err != nil {
		var partial any
		if res != nil {
			partial = newRevertView(res)
		}
		return fail(s.formatter, "revert failed", err, partial)
	}
	return s.formatter.Success(newRevertView(res))
}

package cli

import (
	"github.com/spf13/cobra"
)

// NewLockCommand creates the lock command group.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear the distributed lock",
	}
	cmd.AddCommand(newLockStatusCommand(rootOpts))
	cmd.AddCommand(newLockReleaseCommand(rootOpts))
	return cmd
}

func newLockStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who holds the lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(rootOpts, cmd)
			if err != nil {
				return err
			}
			rec, err := s.engine.LockStatus(cmd.Context())
			if err != nil {
				return fail(s.formatter, "failed to read lock", err, nil)
			}
			return s.formatter.Success(newLockView(rec))
		},
	}
}

func newLockReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Force-release the lock after a crashed run",
		Long: `Clear the lock regardless of its holder. Only use this when the holder
is known to be dead; a live holder loses its lease at its next renewal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(rootOpts, cmd)
			if err != nil {
				return err
			}
			cleared, err := s.engine.ForceRelease(cmd.Context())
			if err != nil {
				return fail(s.formatter, "failed to release lock", err, nil)
			}
			return s.formatter.Success(ReleaseView{Cleared: cleared})
		},
	}
}

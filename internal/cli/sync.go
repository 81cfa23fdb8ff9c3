package cli

import (
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create every due occurrence of the active rules",
		Long: `Create every due occurrence of the owner's active rules up to today.

Running sync again without rule changes creates nothing. Rules with a
variable date are reported as skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			res, err := opts.app.Rules.SyncTransactions(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return opts.printer(cmd).sync(res)
		},
	}
}

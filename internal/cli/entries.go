package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEntriesCommand creates the entries command group.
func NewEntriesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Operate on generated entries",
	}
	cmd.AddCommand(newEntriesOverrideCommand(opts))
	return cmd
}

func newEntriesOverrideCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "override <entry-id>",
		Short: "Mark a generated entry as manually edited",
		Long: `Mark a generated entry as manually edited so later rule updates leave
it alone. Entries not generated by a rule are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			if err := opts.app.Rules.MarkEntryAsManualOverride(cmd.Context(), owner, id); err != nil {
				return err
			}
			return opts.printer(cmd).message("entry %d marked as manual override", id)
		},
	}
}

package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	applog "bilancio/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string // "json" | "text"
	OwnerID int64

	app     *App
	ownsApp bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the bilancio command. The backend is built from the
// environment on first use.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// NewRootCommandWithApp creates the command tree over an existing App.
func NewRootCommandWithApp(app *App) *cobra.Command {
	return newRootCommand(&RootOptions{app: app})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bilancio",
		Short: "Recurring income and expense rules",
		Long: `bilancio manages recurring rules (rent, salary, subscriptions, loan
installments) and materializes their due occurrences as ledger entries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.app != nil {
				return nil
			}
			LoadEnvFile()
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg.LogLevel, applog.ComponentCLI)
			app, err := NewAppFromConfig(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			opts.app = app
			opts.ownsApp = true
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ownsApp {
				return opts.app.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().Int64Var(&opts.OwnerID, "owner", 0, "owner id (default: OWNER_ID)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewEntriesCommand(opts))

	return cmd
}

// owner resolves the --owner flag against the app default.
func (o *RootOptions) owner() (int64, error) {
	id := o.OwnerID
	if id == 0 {
		id = o.app.OwnerID
	}
	if err := mustPositive("owner", id); err != nil {
		return 0, err
	}
	return id, nil
}

func (o *RootOptions) printer(cmd *cobra.Command) *printer {
	return &printer{format: o.Format, w: cmd.OutOrStdout()}
}

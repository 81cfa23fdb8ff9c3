package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// ruleFlags mirrors core.RuleInput on the command line. Amount and day take
// the keyword "variable" for the variable arm.
type ruleFlags struct {
	name        string
	kind        string
	direction   string
	category    int64
	currency    string
	amount      string
	day         string
	start       string
	occurrences int
	note        string
	active      bool
	scope       string
}

func (f *ruleFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "rule name")
	fs.StringVar(&f.kind, "type", string(core.KindOther), "loan|subscription|income|bill|credit_card|other")
	fs.StringVar(&f.direction, "direction", string(core.Expense), "income|expense")
	fs.Int64Var(&f.category, "category", 0, "category id (0 for none)")
	fs.StringVar(&f.currency, "currency", "", "ISO currency code (default: DEFAULT_CURRENCY)")
	fs.StringVar(&f.amount, "amount", "", `amount, or "variable"`)
	fs.StringVar(&f.day, "day", "", `day of month 1-31, or "variable"`)
	fs.StringVar(&f.start, "start", "", "start date (YYYY-MM-DD)")
	fs.IntVar(&f.occurrences, "occurrences", 0, "total occurrences for fixed-term rules (0 for open-ended)")
	fs.StringVar(&f.note, "note", "", "free-form note copied to generated entries")
}

// apply copies the flags that were set on fs into in.
func (f *ruleFlags) apply(fs *pflag.FlagSet, in *core.RuleInput) error {
	if fs.Changed("name") {
		in.Name = f.name
	}
	if fs.Changed("type") || in.Kind == "" {
		in.Kind = core.RuleKind(f.kind)
	}
	if fs.Changed("direction") || in.Direction == "" {
		in.Direction = core.Direction(f.direction)
	}
	if fs.Changed("category") {
		in.CategoryID = nil
		if f.category != 0 {
			id := f.category
			in.CategoryID = &id
		}
	}
	if fs.Changed("currency") {
		in.Currency = core.Currency(strings.ToUpper(f.currency))
	}
	if fs.Changed("amount") {
		in.Amount, in.AmountIsVariable = nil, false
		if strings.EqualFold(f.amount, "variable") {
			in.AmountIsVariable = true
		} else {
			amt, err := core.ParseAmount(f.amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			in.Amount = &amt
		}
	}
	if fs.Changed("day") {
		in.DayOfMonth, in.DateIsVariable = nil, false
		if strings.EqualFold(f.day, "variable") {
			in.DateIsVariable = true
		} else {
			day, err := strconv.Atoi(f.day)
			if err != nil {
				return fmt.Errorf("--day: %w: %q is not a number", core.ErrValidation, f.day)
			}
			in.DayOfMonth = &day
		}
	}
	if fs.Changed("start") {
		d, err := core.ParseDate(f.start)
		if err != nil {
			return fmt.Errorf("--start: %w: %v", core.ErrValidation, err)
		}
		in.StartDate = d
	}
	if fs.Changed("occurrences") {
		in.TotalOccurrences = nil
		in.EndType = core.EndOpenEnded
		if f.occurrences != 0 {
			n := f.occurrences
			in.TotalOccurrences = &n
			in.EndType = core.EndFixedTerm
		}
	}
	if in.EndType == "" {
		in.EndType = core.EndOpenEnded
	}
	if fs.Changed("note") {
		in.Note = f.note
	}
	return nil
}

// inputFromRule rebuilds the input a rule was created from, so updates can
// change only the flags the user passed.
func inputFromRule(r core.Rule) core.RuleInput {
	in := core.RuleInput{
		Name:       r.Name,
		Kind:       r.Kind,
		Direction:  r.Direction,
		CategoryID: r.CategoryID,
		Currency:   r.Currency,
		StartDate:  r.StartDate,
		EndType:    r.Termination.EndType(),
		Note:       r.Note,
	}
	if amt, ok := r.Amount.Fixed(); ok {
		in.Amount = &amt
	} else {
		in.AmountIsVariable = true
	}
	if day, ok := r.Day.Fixed(); ok {
		in.DayOfMonth = &day
	} else {
		in.DateIsVariable = true
	}
	if total, ok := r.Termination.Total(); ok {
		in.TotalOccurrences = &total
	}
	return in
}

func parseRuleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid rule id %q", s)
	}
	return id, nil
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage recurring rules",
	}

	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesGetCommand(opts))
	cmd.AddCommand(newRulesCreateCommand(opts))
	cmd.AddCommand(newRulesUpdateCommand(opts))
	cmd.AddCommand(newRulesToggleCommand(opts))
	cmd.AddCommand(newRulesDeleteCommand(opts))
	cmd.AddCommand(newRulesInstancesCommand(opts))

	return cmd
}

func newRulesListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			views, err := opts.app.Rules.ListRules(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return opts.printer(cmd).rules(views)
		},
	}
}

func newRulesGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <rule-id>",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			view, err := opts.app.Rules.GetRule(cmd.Context(), owner, id)
			if err != nil {
				return err
			}
			return opts.printer(cmd).rule(view)
		},
	}
}

func newRulesCreateCommand(opts *RootOptions) *cobra.Command {
	flags := &ruleFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rule",
		Long: `Create a rule. New rules are always active.

Example:
  bilancio rules create --name Rent --type bill --amount 45000 --day 5 --start 2024-01-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			var in core.RuleInput
			if err := flags.apply(cmd.Flags(), &in); err != nil {
				return err
			}
			view, err := opts.app.Rules.CreateRule(cmd.Context(), owner, in)
			if err != nil {
				return err
			}
			return opts.printer(cmd).rule(view)
		},
	}
	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newRulesUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &ruleFlags{}
	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Update a rule and propagate the change to its generated entries",
		Long: `Update a rule. Only the flags passed change; the rest is kept.

--scope FUTURE_ONLY (default) touches generated entries scheduled today or
later; ALL touches every generated entry. Entries marked as manual
overrides are never changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			scope, err := core.ParseApplyScope(strings.ToUpper(flags.scope))
			if err != nil {
				return err
			}

			current, err := opts.app.Rules.GetRule(cmd.Context(), owner, id)
			if err != nil {
				return err
			}
			in := inputFromRule(current.Rule)
			if err := flags.apply(cmd.Flags(), &in); err != nil {
				return err
			}
			if cmd.Flags().Changed("active") {
				active := flags.active
				in.IsActive = &active
			}

			view, err := opts.app.Rules.UpdateRule(cmd.Context(), owner, id, in, scope)
			if err != nil {
				return err
			}
			return opts.printer(cmd).rule(view)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&flags.scope, "scope", string(core.ScopeFutureOnly), "FUTURE_ONLY|ALL")
	cmd.Flags().BoolVar(&flags.active, "active", true, "set the active flag")
	return cmd
}

func newRulesToggleCommand(opts *RootOptions) *cobra.Command {
	var (
		active       bool
		deleteFuture bool
	)
	cmd := &cobra.Command{
		Use:   "toggle <rule-id>",
		Short: "Activate or deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			view, err := opts.app.Rules.ToggleActive(cmd.Context(), owner, id, services.ToggleInput{
				IsActive:              active,
				DeleteFutureGenerated: deleteFuture,
			})
			if err != nil {
				return err
			}
			return opts.printer(cmd).rule(view)
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "new active state")
	cmd.Flags().BoolVar(&deleteFuture, "delete-future", false, "when deactivating, delete generated entries from today on")
	_ = cmd.MarkFlagRequired("active")
	return cmd
}

func newRulesDeleteCommand(opts *RootOptions) *cobra.Command {
	var deleteFuture bool
	cmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Retire a rule; past entries are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			if err := opts.app.Rules.DeleteRule(cmd.Context(), owner, id, deleteFuture); err != nil {
				return err
			}
			return opts.printer(cmd).message("rule %d deleted", id)
		},
	}
	cmd.Flags().BoolVar(&deleteFuture, "delete-future", false, "delete generated entries from today on")
	return cmd
}

func newRulesInstancesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instances <rule-id>",
		Short: "List the entries generated by a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := opts.owner()
			if err != nil {
				return err
			}
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}
			views, err := opts.app.Rules.ListInstancesForRule(cmd.Context(), owner, id)
			if err != nil {
				return err
			}
			return opts.printer(cmd).instances(views)
		},
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// RuleView is a rule plus the fields computed from its instances.
type RuleView struct {
	core.Rule
	CategoryName      string
	CreatedCount      int
	NextScheduledDate *core.Date
	// Progress and ProgressPercent are set for fixed-term rules only.
	Progress        string
	ProgressPercent *int
}

// InstanceView is an instance with the name of its rule.
type InstanceView struct {
	core.Instance
	RuleName string
}

func buildRuleView(ctx context.Context, store ledger.Store, rule core.Rule, today core.Date) (RuleView, error) {
	view := RuleView{Rule: rule}

	count, err := store.CountInstances(ctx, rule.ID)
	if err != nil {
		return view, fmt.Errorf("count instances: %w", err)
	}
	view.CreatedCount = count

	if rule.CategoryID != nil {
		cat, err := store.GetCategory(ctx, *rule.CategoryID, rule.OwnerID)
		switch {
		case err == nil:
			view.CategoryName = cat.Name
		case !errors.Is(err, core.ErrNotFound):
			return view, fmt.Errorf("get category: %w", err)
		}
	}

	view.NextScheduledDate = nextScheduledDate(rule, count, today)

	if total, ok := rule.Termination.Total(); ok {
		view.Progress = fmt.Sprintf("%d/%d", count, total)
		pct := min(count*100/total, 100)
		view.ProgressPercent = &pct
	}
	return view, nil
}

// nextScheduledDate returns nil for inactive, variable-date and completed
// fixed-term rules.
func nextScheduledDate(rule core.Rule, created int, today core.Date) *core.Date {
	if !rule.IsActive || rule.Day.IsVariable() {
		return nil
	}
	if total, ok := rule.Termination.Total(); ok && created >= total {
		return nil
	}

	current := core.MonthOf(today)
	if start := rule.StartMonth(); start.After(current) {
		d := core.ScheduledDate(rule.Day, start)
		return &d
	}

	d := core.ScheduledDate(rule.Day, current)
	if today.After(d) {
		d = core.ScheduledDate(rule.Day, current.Next())
	}
	return &d
}

// Clock supplies the reference date for operations that depend on "today".
type Clock interface {
	Today() core.Date
}

// SystemClock reads the wall clock and keeps the UTC calendar day.
type SystemClock struct{}

func (SystemClock) Today() core.Date {
	return core.DateOf(time.Now().UTC())
}

// FixedClock always returns the same day.
type FixedClock core.Date

func (c FixedClock) Today() core.Date {
	return core.Date(c)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// RuleApplier propagates a rule's current state to the entries it already
// generated. Overridden instances are never touched.
type RuleApplier struct {
	store    ledger.Store
	notifier *EntryNotifier
}

func NewRuleApplier(store ledger.Store, notifier *EntryNotifier) *RuleApplier {
	return &RuleApplier{store: store, notifier: notifier}
}

// Apply updates the instances selected by scope and returns how many entries
// changed. Each instance is updated in its own transaction; on error the
// instances already handled stay updated and a re-run converges.
func (a *RuleApplier) Apply(ctx context.Context, rule core.Rule, scope core.ApplyScope, today core.Date) (int, error) {
	var (
		instances []core.Instance
		err       error
	)
	switch scope {
	case core.ScopeAll:
		instances, err = a.store.ListNonOverriddenInstances(ctx, rule.ID)
	case core.ScopeFutureOnly:
		instances, err = a.store.ListFutureNonOverriddenInstances(ctx, rule.ID, today)
	default:
		return 0, core.ErrInvalidScope
	}
	if err != nil {
		return 0, fmt.Errorf("select instances: %w", err)
	}

	updated := 0
	for _, in := range instances {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		ev, ok, err := a.applyOne(ctx, rule, in.ID)
		if err != nil {
			return updated, fmt.Errorf("apply to instance %d: %w", in.ID, err)
		}
		if ok {
			updated++
			a.notifier.Notify(ctx, ev)
		}
	}

	slog.InfoContext(ctx, "Applied rule changes",
		applog.FieldRuleID, rule.ID,
		applog.FieldScope, scope,
		"selected", len(instances),
		"updated", updated)
	return updated, nil
}

func (a *RuleApplier) applyOne(ctx context.Context, rule core.Rule, instanceID int64) (ledger.EntryEvent, bool, error) {
	var (
		ev      ledger.EntryEvent
		applied bool
	)
	err := a.store.WithTx(ctx, func(tx ledger.Store) error {
		in, err := tx.GetInstance(ctx, instanceID)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// The user may have edited the entry since the selection.
		if in.IsManualOverride {
			return nil
		}

		entry, err := tx.GetEntry(ctx, in.EntryID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Generated entry is missing, skipping instance",
				applog.FieldRuleID, rule.ID,
				applog.FieldInstance, in.ID,
				applog.FieldEntryID, in.EntryID)
			return nil
		}
		if err != nil {
			return err
		}

		entry.CategoryID = rule.CategoryID
		entry.Direction = rule.Direction
		entry.Currency = rule.Currency
		if v, ok := rule.Amount.Fixed(); ok {
			entry.Amount = v
		}
		if !rule.Day.IsVariable() {
			// Keep the month the instance stands for, move only the day.
			date := core.ScheduledDate(rule.Day, core.MonthOf(in.ScheduledFor))
			entry.Date = date
			if entry.Source != nil {
				src := *entry.Source
				src.ScheduledFor = date
				entry.Source = &src
			}
			if date != in.ScheduledFor {
				in.ScheduledFor = date
				if err := tx.UpdateInstance(ctx, in); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		ev = ledger.NewEntryEvent(ledger.EntryUpdated, rule.ID, entry)
		applied = true
		return nil
	})
	return ev, applied, err
}

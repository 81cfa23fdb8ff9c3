package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// SyncResult summarizes one SyncTransactions call.
type SyncResult struct {
	RunID               string
	TransactionsCreated int
	RulesProcessed      int
	RulesSkipped        int
	Details             []RuleSyncDetail
}

// RuleSyncDetail reports what a sync did for one rule. Message is set only
// when the rule was skipped.
type RuleSyncDetail struct {
	RuleID              int64
	RuleName            string
	TransactionsCreated int
	Message             string
}

func (d RuleSyncDetail) Skipped() bool {
	return d.TransactionsCreated == 0 && d.Message != ""
}

// SyncEngine materializes due occurrences of active rules as ledger entries.
type SyncEngine struct {
	store       ledger.Store
	locks       *RuleLocks
	notifier    *EntryNotifier
	concurrency int
}

func NewSyncEngine(store ledger.Store, locks *RuleLocks, notifier *EntryNotifier, concurrency int) *SyncEngine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncEngine{
		store:       store,
		locks:       locks,
		notifier:    notifier,
		concurrency: concurrency,
	}
}

// SyncTransactions creates every missing occurrence of the owner's active
// rules whose scheduled date is on or before today. Calling it again with
// no rule changes in between creates nothing.
func (e *SyncEngine) SyncTransactions(ctx context.Context, ownerID int64, today core.Date) (*SyncResult, error) {
	runID := uuid.NewString()

	rules, err := e.store.ListActiveRules(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	slog.InfoContext(ctx, "Syncing recurring rules",
		applog.FieldRunID, runID,
		applog.FieldOwnerID, ownerID,
		"active_rules", len(rules),
		"today", today.String())

	details := make([]RuleSyncDetail, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			d, err := e.syncRule(gctx, rule, today)
			if err != nil {
				return fmt.Errorf("sync rule %d: %w", rule.ID, err)
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Sync aborted", applog.FieldRunID, runID, applog.FieldError, err)
		return nil, err
	}

	result := &SyncResult{
		RunID:          runID,
		RulesProcessed: len(rules),
		Details:        details,
	}
	for _, d := range details {
		result.TransactionsCreated += d.TransactionsCreated
		if d.Skipped() {
			result.RulesSkipped++
		}
	}

	slog.InfoContext(ctx, "Sync completed",
		applog.FieldRunID, runID,
		applog.FieldCreated, result.TransactionsCreated,
		"rules", result.RulesProcessed,
		applog.FieldSkipped, result.RulesSkipped)

	return result, nil
}

// syncRule walks the rule's months from its start month to today's month.
// The rule is re-read under its lock inside the transaction, so a concurrent
// update or deactivation is either fully seen or fully waited for.
func (e *SyncEngine) syncRule(ctx context.Context, listed core.Rule, today core.Date) (RuleSyncDetail, error) {
	detail := RuleSyncDetail{RuleID: listed.ID, RuleName: listed.Name}

	unlock := e.locks.Lock(listed.ID)
	defer unlock()

	var (
		rule   core.Rule
		events []ledger.EntryEvent
	)
	err := e.store.WithTx(ctx, func(tx ledger.Store) error {
		created := 0
		events = events[:0]

		var err error
		rule, err = tx.GetRule(ctx, listed.ID, listed.OwnerID)
		if err != nil {
			return fmt.Errorf("reload rule: %w", err)
		}
		detail.RuleName = rule.Name
		if !rule.IsActive {
			return nil
		}

		policy, err := GetSchedulePolicy(rule)
		if err != nil {
			return err
		}
		if !policy.AutoGenerate() {
			detail.Message = policy.SkipReason()
			slog.DebugContext(ctx, "Skipping rule", applog.FieldRuleID, rule.ID, "reason", detail.Message)
			return nil
		}

		existing, err := tx.CountInstances(ctx, rule.ID)
		if err != nil {
			return fmt.Errorf("count instances: %w", err)
		}
		total, fixedTerm := rule.Termination.Total()
		current := core.MonthOf(today)

		var prev core.Date
		for month := rule.StartMonth(); !month.After(current); month = month.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if fixedTerm && existing+created >= total {
				break
			}

			scheduled := policy.Occurrence(rule, month)
			if err := checkMonotonic(month, scheduled, prev); err != nil {
				return err
			}
			prev = scheduled
			// Later months only schedule later dates, so nothing after this is due.
			if scheduled.After(today) {
				break
			}

			exists, err := tx.InstanceExistsForMonth(ctx, rule.ID, month)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			entry, err := materialize(ctx, tx, rule, scheduled, existing+created+1)
			if err != nil {
				return err
			}
			created++
			events = append(events, ledger.NewEntryEvent(ledger.EntryGenerated, rule.ID, entry))
		}

		detail.TransactionsCreated = created
		return nil
	})
	if err != nil {
		return detail, err
	}

	if detail.TransactionsCreated > 0 {
		slog.InfoContext(ctx, "Created entries from recurring rule",
			applog.FieldRuleID, rule.ID,
			applog.FieldRuleName, rule.Name,
			applog.FieldCreated, detail.TransactionsCreated)
	}
	e.notifier.Notify(ctx, events...)
	return detail, nil
}

// checkMonotonic guards the early exit in syncRule: the scheduled date must
// fall inside its own month and after the previous month's date.
func checkMonotonic(month core.Month, scheduled, prev core.Date) error {
	if !month.Contains(scheduled) {
		return fmt.Errorf("%w: %s scheduled outside %s", core.ErrScheduleInvariant, scheduled, month)
	}
	if !prev.IsEmpty() && !scheduled.After(prev) {
		return fmt.Errorf("%w: %s does not follow %s", core.ErrScheduleInvariant, scheduled, prev)
	}
	return nil
}

// materialize creates the entry for one occurrence and the instance linking
// it to the rule. index is the 1-based occurrence number.
func materialize(ctx context.Context, tx ledger.Store, rule core.Rule, scheduled core.Date, index int) (core.Entry, error) {
	amount := decimal.Zero
	if v, ok := rule.Amount.Fixed(); ok {
		amount = v
	}

	entry := core.Entry{
		OwnerID:    rule.OwnerID,
		CategoryID: rule.CategoryID,
		Direction:  rule.Direction,
		Amount:     amount,
		Currency:   rule.Currency,
		Date:       scheduled,
		Note:       occurrenceNote(rule, index),
		Source:     &core.EntrySource{RuleID: rule.ID, ScheduledFor: scheduled},
	}
	if err := tx.CreateEntry(ctx, &entry); err != nil {
		return entry, err
	}

	in := core.Instance{
		RuleID:       rule.ID,
		EntryID:      entry.ID,
		ScheduledFor: scheduled,
	}
	if rule.Termination.IsFixedTerm() {
		idx := index
		in.OccurrenceIndex = &idx
	}
	if err := tx.CreateInstance(ctx, &in); err != nil {
		return entry, err
	}

	slog.DebugContext(ctx, "Materialized occurrence",
		applog.FieldRuleID, rule.ID,
		applog.FieldEntryID, entry.ID,
		applog.FieldScheduled, scheduled.String())
	return entry, nil
}

// occurrenceNote prefixes fixed-term notes with "[i/N] name".
func occurrenceNote(rule core.Rule, index int) string {
	total, ok := rule.Termination.Total()
	if !ok {
		return rule.Note
	}
	prefix := fmt.Sprintf("[%d/%d] %s", index, total, rule.Name)
	if rule.Note == "" {
		return prefix
	}
	return prefix + " - " + rule.Note
}

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

// RuleServiceConfig holds the tunables of a RuleService.
type RuleServiceConfig struct {
	// DefaultCurrency fills rules created without a currency (default: RSD)
	DefaultCurrency core.Currency

	// SyncConcurrency bounds how many rules sync in parallel (default: 4)
	SyncConcurrency int

	// Clock supplies "today" (default: SystemClock)
	Clock Clock
}

func DefaultRuleServiceConfig() RuleServiceConfig {
	return RuleServiceConfig{
		DefaultCurrency: core.DefaultCurrency,
		SyncConcurrency: 4,
		Clock:           SystemClock{},
	}
}

// ToggleInput is the payload of ToggleActive.
type ToggleInput struct {
	IsActive              bool
	DeleteFutureGenerated bool
}

// RuleService is the entry point of the engine: rule lifecycle, sync,
// instance listing and manual overrides. All operations are scoped to an owner.
type RuleService struct {
	store    ledger.Store
	engine   *SyncEngine
	applier  *RuleApplier
	locks    *RuleLocks
	notifier *EntryNotifier
	config   RuleServiceConfig
}

func NewRuleService(store ledger.Store, publisher ledger.EventPublisher, config RuleServiceConfig) *RuleService {
	defaults := DefaultRuleServiceConfig()
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = defaults.DefaultCurrency
	}
	if config.SyncConcurrency < 1 {
		config.SyncConcurrency = defaults.SyncConcurrency
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}

	locks := NewRuleLocks()
	notifier := NewEntryNotifier(publisher)
	return &RuleService{
		store:    store,
		engine:   NewSyncEngine(store, locks, notifier, config.SyncConcurrency),
		applier:  NewRuleApplier(store, notifier),
		locks:    locks,
		notifier: notifier,
		config:   config,
	}
}

// SyncTransactions runs the sync engine for owner as of the clock's today.
func (s *RuleService) SyncTransactions(ctx context.Context, ownerID int64) (*SyncResult, error) {
	return s.engine.SyncTransactions(ctx, ownerID, s.config.Clock.Today())
}

func (s *RuleService) CreateRule(ctx context.Context, ownerID int64, in core.RuleInput) (RuleView, error) {
	spec, err := in.Validate()
	if err != nil {
		return RuleView{}, err
	}
	if err := s.checkCategory(ctx, ownerID, in.CategoryID); err != nil {
		return RuleView{}, err
	}

	rule := core.Rule{OwnerID: ownerID}
	in.Apply(&rule, spec, s.config.DefaultCurrency)
	rule.IsActive = true

	if err := s.store.CreateRule(ctx, &rule); err != nil {
		return RuleView{}, fmt.Errorf("create rule: %w", err)
	}

	slog.InfoContext(ctx, "Created recurring rule",
		applog.FieldRuleID, rule.ID,
		applog.FieldOwnerID, ownerID,
		"name", rule.Name,
		"amount", rule.Amount.String(),
		"day", rule.Day.String(),
		"termination", rule.Termination.String())

	return buildRuleView(ctx, s.store, rule, s.config.Clock.Today())
}

// UpdateRule overwrites the rule with in and propagates the change to
// generated entries selected by scope. Nothing is written when in is invalid.
func (s *RuleService) UpdateRule(ctx context.Context, ownerID, id int64, in core.RuleInput, scope core.ApplyScope) (RuleView, error) {
	if scope == "" {
		scope = core.ScopeFutureOnly
	}
	if !scope.Valid() {
		return RuleView{}, core.ErrInvalidScope
	}
	spec, err := in.Validate()
	if err != nil {
		return RuleView{}, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	rule, err := s.store.GetRule(ctx, id, ownerID)
	if err != nil {
		return RuleView{}, err
	}
	if err := s.checkCategory(ctx, ownerID, in.CategoryID); err != nil {
		return RuleView{}, err
	}

	in.Apply(&rule, spec, s.config.DefaultCurrency)
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return RuleView{}, fmt.Errorf("update rule: %w", err)
	}

	today := s.config.Clock.Today()
	updated, err := s.applier.Apply(ctx, rule, scope, today)
	if err != nil {
		return RuleView{}, fmt.Errorf("apply rule changes: %w", err)
	}

	slog.InfoContext(ctx, "Updated recurring rule",
		applog.FieldRuleID, rule.ID,
		applog.FieldOwnerID, ownerID,
		applog.FieldScope, scope,
		"entries_updated", updated)

	return buildRuleView(ctx, s.store, rule, today)
}

// ToggleActive sets the rule's active flag. Deactivating with
// DeleteFutureGenerated also removes generated entries from today on.
// Reactivating never backfills; the next sync does.
func (s *RuleService) ToggleActive(ctx context.Context, ownerID, id int64, in ToggleInput) (RuleView, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	today := s.config.Clock.Today()
	var (
		rule   core.Rule
		events []ledger.EntryEvent
	)
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		rule, err = tx.GetRule(ctx, id, ownerID)
		if err != nil {
			return err
		}
		wasActive := rule.IsActive
		rule.IsActive = in.IsActive
		if err := tx.UpdateRule(ctx, rule); err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		if wasActive && !in.IsActive && in.DeleteFutureGenerated {
			events, err = deleteFutureInstances(ctx, tx, rule, today)
			return err
		}
		return nil
	})
	if err != nil {
		return RuleView{}, err
	}
	s.notifier.Notify(ctx, events...)

	slog.InfoContext(ctx, "Toggled recurring rule",
		applog.FieldRuleID, id,
		applog.FieldOwnerID, ownerID,
		"is_active", rule.IsActive,
		"entries_deleted", len(events))

	return buildRuleView(ctx, s.store, rule, today)
}

// DeleteRule retires the rule. Rules are never physically removed so that
// past instances keep their reference.
func (s *RuleService) DeleteRule(ctx context.Context, ownerID, id int64, deleteFutureGenerated bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	today := s.config.Clock.Today()
	var events []ledger.EntryEvent
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		rule, err := tx.GetRule(ctx, id, ownerID)
		if err != nil {
			return err
		}
		rule.IsActive = false
		if err := tx.UpdateRule(ctx, rule); err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		if deleteFutureGenerated {
			events, err = deleteFutureInstances(ctx, tx, rule, today)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, events...)

	slog.InfoContext(ctx, "Soft-deleted recurring rule",
		applog.FieldRuleID, id,
		applog.FieldOwnerID, ownerID,
		"entries_deleted", len(events))
	return nil
}

func (s *RuleService) GetRule(ctx context.Context, ownerID, id int64) (RuleView, error) {
	rule, err := s.store.GetRule(ctx, id, ownerID)
	if err != nil {
		return RuleView{}, err
	}
	return buildRuleView(ctx, s.store, rule, s.config.Clock.Today())
}

// ListRules returns the owner's rules, newest first.
func (s *RuleService) ListRules(ctx context.Context, ownerID int64) ([]RuleView, error) {
	rules, err := s.store.ListRules(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	today := s.config.Clock.Today()
	views := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		v, err := buildRuleView(ctx, s.store, r, today)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// ListInstancesForRule returns the rule's instances by scheduled date.
func (s *RuleService) ListInstancesForRule(ctx context.Context, ownerID, ruleID int64) ([]InstanceView, error) {
	rule, err := s.store.GetRule(ctx, ruleID, ownerID)
	if err != nil {
		return nil, err
	}
	instances, err := s.store.ListInstances(ctx, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	views := make([]InstanceView, 0, len(instances))
	for _, in := range instances {
		views = append(views, InstanceView{Instance: in, RuleName: rule.Name})
	}
	return views, nil
}

// MarkEntryAsManualOverride flags the instance behind a generated entry so
// later rule edits leave it alone. Entries not generated by a rule are
// ignored.
func (s *RuleService) MarkEntryAsManualOverride(ctx context.Context, ownerID, entryID int64) error {
	in, err := s.store.FindInstanceByEntryID(ctx, entryID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find instance: %w", err)
	}

	unlock := s.locks.Lock(in.RuleID)
	defer unlock()

	if _, err := s.store.GetRule(ctx, in.RuleID, ownerID); err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(tx ledger.Store) error {
		cur, err := tx.FindInstanceByEntryID(ctx, entryID)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.IsManualOverride {
			return nil
		}
		cur.IsManualOverride = true
		if err := tx.UpdateInstance(ctx, cur); err != nil {
			return fmt.Errorf("mark override: %w", err)
		}
		slog.InfoContext(ctx, "Marked generated entry as manual override",
			applog.FieldRuleID, cur.RuleID,
			applog.FieldInstance, cur.ID,
			applog.FieldEntryID, entryID)
		return nil
	})
}

func (s *RuleService) checkCategory(ctx context.Context, ownerID int64, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.store.GetCategory(ctx, *categoryID, ownerID); err != nil {
		return err
	}
	return nil
}

// deleteFutureInstances removes generated entries scheduled on or after
// today, instance first and entry second. Overridden ones are kept.
func deleteFutureInstances(ctx context.Context, tx ledger.Store, rule core.Rule, today core.Date) ([]ledger.EntryEvent, error) {
	instances, err := tx.ListFutureInstances(ctx, rule.ID, today)
	if err != nil {
		return nil, fmt.Errorf("list future instances: %w", err)
	}

	var (
		events []ledger.EntryEvent
		kept   int
	)
	for _, in := range instances {
		if in.IsManualOverride {
			kept++
			continue
		}
		entry, err := tx.GetEntry(ctx, in.EntryID)
		entryFound := err == nil
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		if err := tx.DeleteInstance(ctx, in.ID); err != nil {
			return nil, fmt.Errorf("delete instance %d: %w", in.ID, err)
		}
		if !entryFound {
			continue
		}
		if err := tx.DeleteEntry(ctx, in.EntryID); err != nil {
			return nil, fmt.Errorf("delete entry %d: %w", in.EntryID, err)
		}
		events = append(events, ledger.NewEntryEvent(ledger.EntryDeleted, rule.ID, entry))
	}

	slog.InfoContext(ctx, "Deleted future generated entries",
		applog.FieldRuleID, rule.ID,
		"deleted", len(instances)-kept,
		"kept_overridden", kept)
	return events, nil
}

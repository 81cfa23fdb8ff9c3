package ledger

import (
	"context"

	"bilancio/internal/core"
)

// Ports for outbound adapters. Lookups of absent or foreign records return
// an error wrapping core.ErrNotFound.
type (
	RuleStore interface {
		ListActiveRules(ctx context.Context, ownerID int64) ([]core.Rule, error)
		// ListRules returns every rule of the owner, newest first.
		ListRules(ctx context.Context, ownerID int64) ([]core.Rule, error)
		GetRule(ctx context.Context, id, ownerID int64) (core.Rule, error)
		// CreateRule persists r and sets its ID and timestamps.
		CreateRule(ctx context.Context, r *core.Rule) error
		UpdateRule(ctx context.Context, r core.Rule) error
	}

	InstanceLedger interface {
		// InstanceExistsForMonth ignores the exact day on purpose.
		InstanceExistsForMonth(ctx context.Context, ruleID int64, month core.Month) (bool, error)
		CountInstances(ctx context.Context, ruleID int64) (int, error)
		// ListInstances returns all instances of the rule ordered by scheduled date.
		ListInstances(ctx context.Context, ruleID int64) ([]core.Instance, error)
		ListNonOverriddenInstances(ctx context.Context, ruleID int64) ([]core.Instance, error)
		ListFutureNonOverriddenInstances(ctx context.Context, ruleID int64, from core.Date) ([]core.Instance, error)
		ListFutureInstances(ctx context.Context, ruleID int64, from core.Date) ([]core.Instance, error)
		GetInstance(ctx context.Context, id int64) (core.Instance, error)
		FindInstanceByEntryID(ctx context.Context, entryID int64) (core.Instance, error)
		CreateInstance(ctx context.Context, in *core.Instance) error
		UpdateInstance(ctx context.Context, in core.Instance) error
		DeleteInstance(ctx context.Context, id int64) error
	}

	EntryLedger interface {
		CreateEntry(ctx context.Context, e *core.Entry) error
		UpdateEntry(ctx context.Context, e core.Entry) error
		DeleteEntry(ctx context.Context, id int64) error
		GetEntry(ctx context.Context, id int64) (core.Entry, error)
	}

	// CategoryReader checks category ownership; categories are managed elsewhere.
	CategoryReader interface {
		GetCategory(ctx context.Context, id, ownerID int64) (core.Category, error)
	}

	// Store bundles the ports. WithTx runs fn against a transactional view of
	// the store; fn's error rolls everything back.
	Store interface {
		RuleStore
		InstanceLedger
		EntryLedger
		CategoryReader
		WithTx(ctx context.Context, fn func(tx Store) error) error
	}

	// EventPublisher announces changes to generated entries.
	EventPublisher interface {
		PublishEntryEvent(ctx context.Context, ev EntryEvent) error
	}
)

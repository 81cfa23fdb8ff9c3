package services

import (
	"context"
	"log/slog"

	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// EntryNotifier forwards entry events to the configured publisher. Events are
// only handed over after the transaction that produced them committed.
type EntryNotifier struct {
	publisher ledger.EventPublisher
}

func NewEntryNotifier(publisher ledger.EventPublisher) *EntryNotifier {
	return &EntryNotifier{publisher: publisher}
}

// Notify publishes events one by one. Failures are logged and dropped.
func (n *EntryNotifier) Notify(ctx context.Context, events ...ledger.EntryEvent) {
	if len(events) == 0 {
		return
	}
	if n == nil || n.publisher == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping entry events", "count", len(events))
		return
	}

	for _, ev := range events {
		if err := n.publisher.PublishEntryEvent(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "Failed to publish entry event",
				"type", ev.Type,
				applog.FieldEntryID, ev.EntryID,
				applog.FieldRuleID, ev.RuleID,
				applog.FieldError, err)
			// Don't fail the operation - the ledger is already updated
		}
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// OverrideMarker is the part of the rule service that records manual edits.
type OverrideMarker interface {
	MarkEntryAsManualOverride(ctx context.Context, ownerID, entryID int64) error
}

// OverrideConsumer turns entry-edited messages into manual overrides, so
// later rule edits leave user-touched entries alone.
type OverrideConsumer struct {
	marker       OverrideMarker
	defaultOwner int64
}

func NewOverrideConsumer(marker OverrideMarker, defaultOwner int64) *OverrideConsumer {
	return &OverrideConsumer{
		marker:       marker,
		defaultOwner: defaultOwner,
	}
}

// HandleEntryEdited processes a single entry-edited message. Messages for
// unknown or foreign entries are acknowledged and dropped; other failures are
// returned so the message is requeued.
func (c *OverrideConsumer) HandleEntryEdited(ctx context.Context, msg *amqp.EntryEditedMessage) error {
	ownerID := msg.OwnerID
	if ownerID == 0 {
		ownerID = c.defaultOwner
	}

	slog.InfoContext(ctx, "Processing entry edit",
		applog.FieldEntryID, msg.EntryID,
		applog.FieldOwnerID, ownerID)

	err := c.marker.MarkEntryAsManualOverride(ctx, ownerID, msg.EntryID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Entry edit refers to an unknown rule, dropping",
			applog.FieldEntryID, msg.EntryID,
			applog.FieldOwnerID, ownerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark manual override: %w", err)
	}
	return nil
}

// Run consumes queue until ctx is cancelled.
func (c *OverrideConsumer) Run(ctx context.Context, client *amqp.Client, queue string) error {
	return client.ConsumeEntryEdits(ctx, queue, c.HandleEntryEdited)
}

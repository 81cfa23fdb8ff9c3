package ledger

import (
	"bilancio/internal/core"
)

// EntryEventType names what happened to a generated entry.
type EntryEventType string

const (
	EntryGenerated EntryEventType = "entry.generated"
	EntryUpdated   EntryEventType = "entry.updated"
	EntryDeleted   EntryEventType = "entry.deleted"
)

// EntryEvent describes a change the engine made to a generated entry.
type EntryEvent struct {
	Type         EntryEventType
	OwnerID      int64
	EntryID      int64
	RuleID       int64
	ScheduledFor core.Date
	Date         core.Date
	Amount       string
	Currency     core.Currency
	Direction    core.Direction
}

// NewEntryEvent builds an event from an entry and the rule it belongs to.
func NewEntryEvent(t EntryEventType, ruleID int64, e core.Entry) EntryEvent {
	ev := EntryEvent{
		Type:      t,
		OwnerID:   e.OwnerID,
		EntryID:   e.ID,
		RuleID:    ruleID,
		Date:      e.Date,
		Amount:    core.FormatAmount(e.Amount),
		Currency:  e.Currency,
		Direction: e.Direction,
	}
	if e.Source != nil {
		ev.ScheduledFor = e.Source.ScheduledFor
	}
	return ev
}

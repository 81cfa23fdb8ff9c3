package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/ledger"
)

// EntryEventMessage announces a change the recurring engine made to a
// generated entry. Consumers such as reporting use it to refresh their views.
type EntryEventMessage struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	OwnerID      int64     `json:"owner_id"`
	EntryID      int64     `json:"entry_id"`
	RuleID       int64     `json:"rule_id"`
	ScheduledFor string    `json:"scheduled_for,omitempty"`
	Date         string    `json:"date,omitempty"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	Direction    string    `json:"direction"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewEntryEventMessage(ev ledger.EntryEvent) *EntryEventMessage {
	return &EntryEventMessage{
		ID:           uuid.NewString(),
		Type:         string(ev.Type),
		OwnerID:      ev.OwnerID,
		EntryID:      ev.EntryID,
		RuleID:       ev.RuleID,
		ScheduledFor: ev.ScheduledFor.String(),
		Date:         ev.Date.String(),
		Amount:       ev.Amount,
		Currency:     string(ev.Currency),
		Direction:    string(ev.Direction),
		Timestamp:    time.Now(),
	}
}

func (m *EntryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryEventMessageFromJSON(data []byte) (*EntryEventMessage, error) {
	var msg EntryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EntryEditedMessage is sent by the entry service whenever a user edits an
// entry directly. Only the IDs travel; the engine looks the rest up.
type EntryEditedMessage struct {
	OwnerID   int64     `json:"owner_id"`
	EntryID   int64     `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEditedMessage(ownerID, entryID int64) *EntryEditedMessage {
	return &EntryEditedMessage{
		OwnerID:   ownerID,
		EntryID:   entryID,
		Timestamp: time.Now(),
	}
}

func (m *EntryEditedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryEditedMessageFromJSON rejects messages without an entry ID.
func EntryEditedMessageFromJSON(data []byte) (*EntryEditedMessage, error) {
	var msg EntryEditedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EntryID <= 0 {
		return nil, fmt.Errorf("entry_id must be positive, got %d", msg.EntryID)
	}
	return &msg, nil
}

package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budgetbook/internal/core"
)

type EventType string

const (
	EntryCreated EventType = "entry.created"
	EntryUpdated EventType = "entry.updated"
	EntryDeleted EventType = "entry.deleted"
	RuleUpdated  EventType = "rule.updated"
	RuleDeleted  EventType = "rule.deleted"
)

// LedgerEvent announces that the ledger month containing Date changed.
// Consumers re-read the month; the event carries no amounts.
type LedgerEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	EntryID   int64     `json:"entry_id,omitempty"`
	RuleID    int64     `json:"rule_id,omitempty"`
	Date      core.Date `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(typ EventType, entryID, ruleID int64, date core.Date) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.New(),
		Type:      typ,
		EntryID:   entryID,
		RuleID:    ruleID,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event and rejects ones without a date.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Date.IsZero() {
		return nil, fmt.Errorf("ledger event %s: missing date", msg.ID)
	}
	return &msg, nil
}

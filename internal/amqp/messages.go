package amqp

import (
	"encoding/json"
	"time"

	"conti/internal/ledger"
)

// LedgerEventMessage is the wire form of a committed ledger operation. It
// carries only identifiers and the affected periods; consumers fetch whatever
// state they need from the store.
type LedgerEventMessage struct {
	Op            string          `json:"op"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Periods       []ledger.Period `json:"periods"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewLedgerEventMessage(ev ledger.Event) *LedgerEventMessage {
	return &LedgerEventMessage{
		Op:            ev.Op,
		TransactionID: ev.TransactionID,
		UserID:        ev.UserID,
		Periods:       ev.Periods,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) Event() ledger.Event {
	return ledger.Event{
		Op:            m.Op,
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		Periods:       m.Periods,
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

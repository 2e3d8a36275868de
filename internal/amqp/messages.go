package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"poupa/internal/core"
)

// Message kinds, carried in the AMQP Type header.
const (
	TypeTransactionEvent = "transaction.event"
	TypeReportRequest    = "report.request"
)

// Transaction event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TransactionEventMessage announces a change to one transaction. The worker
// reloads the row from the database, so only identifiers travel.
type TransactionEventMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEventMessage(userID, id, action string) *TransactionEventMessage {
	return &TransactionEventMessage{
		ID:        id,
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("transaction event without id")
	}
	switch msg.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return nil, fmt.Errorf("unknown transaction event action %q", msg.Action)
	}
	return &msg, nil
}

// ReportRequestMessage asks the worker to generate a report and deliver it on
// a chat channel. Dates are calendar days (YYYY-MM-DD).
type ReportRequestMessage struct {
	UserID    string    `json:"userId"`
	Channel   string    `json:"channel"`
	Address   string    `json:"address"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportRequestMessage(userID, channel, address string, rng core.DateRange) *ReportRequestMessage {
	msg := &ReportRequestMessage{
		UserID:    userID,
		Channel:   channel,
		Address:   address,
		Timestamp: time.Now(),
	}
	if !rng.IsZero() {
		msg.StartDate = rng.Start.Format(time.DateOnly)
		msg.EndDate = rng.End.Format(time.DateOnly)
	}
	return msg
}

func (m *ReportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Range parses the message dates in loc.
func (m *ReportRequestMessage) Range(loc *time.Location) (core.DateRange, error) {
	return core.ParseDateRange(m.StartDate, m.EndDate, loc)
}

func ReportRequestMessageFromJSON(data []byte) (*ReportRequestMessage, error) {
	var msg ReportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("report request without user")
	}
	return &msg, nil
}

package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event subjects.
const (
	EventTypeDepositRequested  = "fund.deposit.requested"
	EventTypeDepositRefunded   = "fund.deposit.refunded"
	EventTypeDepositCompleted  = "fund.deposit.completed"
	EventTypeWithdrawRequested = "fund.withdraw.requested"
	EventTypeWithdrawRefunded  = "fund.withdraw.refunded"
	EventTypeWithdrawProcessed = "fund.withdraw.processed"
	EventTypeWithdrawCompleted = "fund.withdraw.completed"

	EventTypeSettlementOut = "fund.settlement.out"
	EventTypeSettlementIn  = "fund.settlement.in"

	EventTypeTransfer   = "fund.token.transfer"
	EventTypeManualMint = "fund.shares.manual_mint"
)

// Event is the envelope published on the bus.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// RequestEvent carries a deposit or withdrawal request entering a pipeline.
type RequestEvent struct {
	Vault    string `json:"vault"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// SettledEvent carries a completed or processed pipeline entry.
type SettledEvent struct {
	Vault     string `json:"vault"`
	Receiver  string `json:"receiver"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	FeesPaid  string `json:"fees_paid"`
	Nav       string `json:"nav,omitempty"`
}

// SettlementEvent carries a custody movement to or from the delegate.
type SettlementEvent struct {
	Vault    string `json:"vault"`
	Delegate string `json:"delegate"`
	Amount   string `json:"amount"`
}

// TransferEvent carries a token balance movement.
type TransferEvent struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      dataBytes,
	}, nil
}

// ParseEventData decodes an event payload into a typed struct.
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Publisher is the minimal bus surface the ledgers need.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Emit builds and publishes an event. A nil publisher is a no-op, so library
// code can emit unconditionally.
func Emit(ctx context.Context, pub Publisher, eventType, source string, data interface{}) error {
	if pub == nil {
		return nil
	}
	event, err := NewEvent(eventType, source, data)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, eventType, event)
}

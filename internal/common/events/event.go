// Package events defines the settlement event envelope published to NATS.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Settlement event types
const (
	EventWalletCreated           = "wallet.created"
	EventJournalPosted           = "wallet.journal.posted"
	EventJournalCancelled        = "wallet.journal.cancelled"
	EventPaymentCaptured         = "payment.captured"
	EventPaymentFailed           = "payment.failed"
	EventWithdrawalStatusChanged = "withdrawal.status.changed"
)

// JournalPostedData is the data for wallet.journal.posted events
type JournalPostedData struct {
	JournalID string `json:"journal_id"`
	Type      string `json:"type"`
	WalletID  string `json:"wallet_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	Amount    int64  `json:"amount"`
}

// PaymentCapturedData is the data for payment.captured events
type PaymentCapturedData struct {
	PaymentID    string    `json:"payment_id"`
	Provider     string    `json:"provider"`
	WalletID     string    `json:"wallet_id"`
	Amount       int64     `json:"amount"`
	GatewayTxnID string    `json:"gateway_txn_id,omitempty"`
	PaidAt       time.Time `json:"paid_at"`
}

// PaymentFailedData is the data for payment.failed events
type PaymentFailedData struct {
	PaymentID string `json:"payment_id"`
	Provider  string `json:"provider"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

// WithdrawalStatusChangedData is the data for withdrawal.status.changed events
type WithdrawalStatusChangedData struct {
	WithdrawalID string `json:"withdrawal_id"`
	WalletID     string `json:"wallet_id"`
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	From         string `json:"from"`
	To           string `json:"to"`
	Reason       string `json:"reason,omitempty"`
}

// WalletCreatedData is the data for wallet.created events
type WalletCreatedData struct {
	WalletID string `json:"wallet_id"`
	UserID   string `json:"user_id"`
	IsSystem bool   `json:"is_system"`
}

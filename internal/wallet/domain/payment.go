package domain

import (
	"errors"
	"time"

	"marketpay/internal/common/money"
)

// Provider identifies an external payment gateway.
type Provider string

const (
	ProviderVNPay   Provider = "vnpay"
	ProviderMoMo    Provider = "momo"
	ProviderZaloPay Provider = "zalopay"
)

// PaymentStatus is the lifecycle state of a gateway payment.
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment represents a gateway-initiated attempt to move money into the
// system. Captured and Failed are terminal; Captured is safe to re-observe.
type Payment struct {
	ID           string        `json:"id"`
	BookingID    string        `json:"booking_id,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	Amount       money.Amount  `json:"amount"`
	RefundAmount money.Amount  `json:"refund_amount"`
	Provider     Provider      `json:"provider"`
	Status       PaymentStatus `json:"status"`
	GatewayTxnID string        `json:"gateway_txn_id,omitempty"`
	ClientIP     string        `json:"client_ip,omitempty"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewPayment creates an initiated payment.
func NewPayment(id string, provider Provider, amount money.Amount) (*Payment, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if err := money.ValidatePositive(amount); err != nil {
		return nil, ErrAmountInvalid
	}

	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		Provider:  provider,
		Amount:    amount,
		Status:    PaymentStatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsCaptured reports whether the payment reached the captured state.
func (p *Payment) IsCaptured() bool { return p.Status == PaymentStatusCaptured }

// Capture marks the payment captured with the gateway transaction id.
func (p *Payment) Capture(gatewayTxnID string, paidAt time.Time) error {
	if p.Status == PaymentStatusFailed {
		return errors.New("failed payment cannot be captured")
	}
	p.Status = PaymentStatusCaptured
	p.GatewayTxnID = gatewayTxnID
	p.PaidAt = &paidAt
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the payment failed. Re-failing a captured payment is rejected.
func (p *Payment) Fail() error {
	if p.Status == PaymentStatusCaptured {
		return errors.New("captured payment cannot be failed")
	}
	p.Status = PaymentStatusFailed
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordRefund accumulates a refund against the captured amount.
func (p *Payment) RecordRefund(amount money.Amount) error {
	if p.Status != PaymentStatusCaptured {
		return errors.New("only captured payments can be refunded")
	}
	if err := money.ValidatePositive(amount); err != nil {
		return ErrAmountInvalid
	}
	if p.RefundAmount+amount > p.Amount {
		return ErrRefundExceedsCapture
	}
	p.RefundAmount += amount
	p.UpdatedAt = time.Now().UTC()
	return nil
}

package domain

import (
	"errors"
	"time"

	"marketpay/internal/common/money"
)

// WithdrawalStatus is the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// withdrawalTransitions is the allowed transition table. Terminal states
// tolerate self-transitions as no-ops.
var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalPending:   {WithdrawalApproved, WithdrawalCompleted, WithdrawalRejected},
	WithdrawalApproved:  {WithdrawalCompleted, WithdrawalRejected},
	WithdrawalCompleted: {WithdrawalCompleted},
	WithdrawalRejected:  {WithdrawalRejected},
}

// CanWithdrawalTransition reports whether from -> to is a legal transition.
func CanWithdrawalTransition(from, to WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// WithdrawalRequest tracks a payout request from hold to completion or
// rejection. Funds sit in the frozen bucket while the request is open.
type WithdrawalRequest struct {
	ID              string           `json:"id"`
	WalletID        string           `json:"wallet_id"`
	UserID          string           `json:"user_id"`
	Amount          money.Amount     `json:"amount"`
	Status          WithdrawalStatus `json:"status"`
	HoldJournalID   string           `json:"hold_journal_id,omitempty"`
	PayoutJournalID string           `json:"payout_journal_id,omitempty"`
	RejectReason    string           `json:"reject_reason,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewWithdrawalRequest creates a pending withdrawal request.
func NewWithdrawalRequest(id, walletID, userID string, amount money.Amount) (*WithdrawalRequest, error) {
	if id == "" || walletID == "" || userID == "" {
		return nil, errors.New("id, wallet_id and user_id are required")
	}
	if err := money.ValidatePositive(amount); err != nil {
		return nil, ErrAmountInvalid
	}

	now := time.Now().UTC()
	return &WithdrawalRequest{
		ID:        id,
		WalletID:  walletID,
		UserID:    userID,
		Amount:    amount,
		Status:    WithdrawalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Approve records the metadata-only approval transition. Funds do not move.
func (w *WithdrawalRequest) Approve() error {
	if !CanWithdrawalTransition(w.Status, WithdrawalApproved) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	w.Status = WithdrawalApproved
	w.ApprovedAt = &now
	w.CompletedAt = nil
	w.RejectedAt = nil
	w.RejectReason = ""
	w.UpdatedAt = now
	return nil
}

// Complete marks the withdrawal paid out.
func (w *WithdrawalRequest) Complete(payoutJournalID string) error {
	if w.Status == WithdrawalCompleted {
		return nil // terminal self-transition tolerated
	}
	if !CanWithdrawalTransition(w.Status, WithdrawalCompleted) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	w.Status = WithdrawalCompleted
	w.PayoutJournalID = payoutJournalID
	w.CompletedAt = &now
	w.UpdatedAt = now
	return nil
}

// Reject marks the withdrawal rejected with a reason. A rejected request
// may have its reason updated while still rejected.
func (w *WithdrawalRequest) Reject(reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if w.Status == WithdrawalRejected {
		w.RejectReason = reason
		w.UpdatedAt = time.Now().UTC()
		return nil
	}
	if !CanWithdrawalTransition(w.Status, WithdrawalRejected) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	w.Status = WithdrawalRejected
	w.RejectReason = reason
	w.RejectedAt = &now
	w.UpdatedAt = now
	return nil
}

// Package domain defines the wallet ledger data model: wallets, per-account
// balances, journals, ledger entries, payments and withdrawal requests.
package domain

import (
	"errors"
	"time"

	"marketpay/internal/common/money"
)

// AccountType identifies a balance bucket within a wallet.
type AccountType string

const (
	AccountAvailable AccountType = "available" // spendable funds
	AccountEscrow    AccountType = "escrow"    // held against an in-flight booking
	AccountFrozen    AccountType = "frozen"    // held against a pending withdrawal
)

// WalletStatus represents the status of a wallet.
type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusInactive WalletStatus = "inactive"
)

// Wallet is the per-beneficiary balance holder. One per owning user in
// normal operation; the engine tolerates wallets discovered lazily via
// ledger traversal.
type Wallet struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	IsSystem  bool         `json:"is_system"`
	Status    WalletStatus `json:"status"`
	Currency  string       `json:"currency"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewWallet creates an active wallet for a user.
func NewWallet(id, userID string) (*Wallet, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	now := time.Now().UTC()
	return &Wallet{
		ID:        id,
		UserID:    userID,
		Status:    WalletStatusActive,
		Currency:  money.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Balance is the signed minor-unit amount a wallet holds in one account
// bucket. Mutations are always paired inside a unit of work, except for
// gateway-sourced credits which have no internal debit.
type Balance struct {
	ID        string       `json:"id"`
	WalletID  string       `json:"wallet_id"`
	Account   AccountType  `json:"account"`
	Amount    money.Amount `json:"amount"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CanDebit reports whether the balance covers the given debit.
func (b *Balance) CanDebit(amount money.Amount) bool {
	return b.Amount >= amount
}

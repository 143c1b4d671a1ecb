package domain

import (
	"errors"
	"time"

	"marketpay/internal/common/money"
)

// JournalType classifies the economic event a journal records.
type JournalType string

const (
	JournalDeposit        JournalType = "deposit"
	JournalHold           JournalType = "hold"
	JournalCapture        JournalType = "capture"
	JournalPayout         JournalType = "payout"
	JournalRelease        JournalType = "release"
	JournalRefund         JournalType = "refund"
	JournalFee            JournalType = "fee"
	JournalWithdrawalHold JournalType = "withdrawal_hold"
	JournalDisputeFreeze  JournalType = "dispute_freeze"
	JournalDisputeRelease JournalType = "dispute_release"
)

// JournalStatus is the lifecycle state of a journal.
type JournalStatus string

const (
	JournalStatusPending   JournalStatus = "pending"
	JournalStatusPosted    JournalStatus = "posted"
	JournalStatusCancelled JournalStatus = "cancelled"
)

// Journal is the append-style record of one economic event. It is the unit
// of idempotency: callers look a journal up by business key (payment id)
// before deciding whether to post.
type Journal struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id,omitempty"`
	PaymentID string        `json:"payment_id,omitempty"`
	Type      JournalType   `json:"type"`
	Status    JournalStatus `json:"status"`
	Amount    money.Amount  `json:"amount"`
	CreatedAt time.Time     `json:"created_at"`
	PostedAt  *time.Time    `json:"posted_at,omitempty"`
	Entries   []*LedgerEntry `json:"entries,omitempty"`
}

// NewJournal creates a pending journal.
func NewJournal(id string, jtype JournalType, amount money.Amount) (*Journal, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if err := money.ValidatePositive(amount); err != nil {
		return nil, ErrAmountInvalid
	}

	return &Journal{
		ID:        id,
		Type:      jtype,
		Status:    JournalStatusPending,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsPosted reports whether the journal has already been posted.
func (j *Journal) IsPosted() bool { return j.Status == JournalStatusPosted }

// Post marks a pending journal posted.
func (j *Journal) Post() error {
	if j.Status != JournalStatusPending {
		return errors.New("only pending journals can be posted")
	}
	now := time.Now().UTC()
	j.Status = JournalStatusPosted
	j.PostedAt = &now
	return nil
}

// Cancel marks a pending journal cancelled. Cancelling a posted journal is
// rejected; posted journals are reversed with a new journal instead.
func (j *Journal) Cancel() error {
	if j.Status != JournalStatusPending {
		return errors.New("only pending journals can be cancelled")
	}
	j.Status = JournalStatusCancelled
	return nil
}

// EntryDirection marks a ledger entry as a debit or credit.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
)

// LedgerEntry ties a journal to one wallet/account-type effect. Entries are
// upserted by (journal_id, wallet_id) so replays of the same callback
// converge rather than duplicate.
type LedgerEntry struct {
	ID          string         `json:"id"`
	JournalID   string         `json:"journal_id"`
	WalletID    string         `json:"wallet_id"`
	Account     AccountType    `json:"account"`
	Direction   EntryDirection `json:"direction"`
	Amount      money.Amount   `json:"amount"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewLedgerEntry creates a ledger entry line.
func NewLedgerEntry(id, journalID, walletID string, account AccountType, direction EntryDirection, amount money.Amount, description string) (*LedgerEntry, error) {
	if id == "" || journalID == "" || walletID == "" {
		return nil, errors.New("id, journal_id and wallet_id are required")
	}
	if err := money.ValidatePositive(amount); err != nil {
		return nil, ErrAmountInvalid
	}

	return &LedgerEntry{
		ID:          id,
		JournalID:   journalID,
		WalletID:    walletID,
		Account:     account,
		Direction:   direction,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// GatewayEffect returns the account bucket and direction a gateway-sourced
// capture applies for a journal type. Deposits credit available funds;
// booking holds credit escrow directly since the money arrives from outside.
func GatewayEffect(jtype JournalType) (AccountType, EntryDirection, bool) {
	switch jtype {
	case JournalDeposit:
		return AccountAvailable, EntryCredit, true
	case JournalHold:
		return AccountEscrow, EntryCredit, true
	default:
		return "", "", false
	}
}

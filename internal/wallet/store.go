package wallet

import (
	"context"

	"marketpay/internal/common/money"
	"marketpay/internal/wallet/domain"
)

// Store is the ledger persistence contract. Every method runs against the
// current unit of work: a Store obtained from WithinTx is bound to one
// transaction, and the balance mutation, journal status change and ledger
// entry upsert of a logical operation commit atomically or not at all.
type Store interface {
	// WithinTx runs fn against a transaction-scoped store. Nested calls
	// join the surrounding transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error

	// Wallets
	CreateWallet(ctx context.Context, w *domain.Wallet) error
	GetWallet(ctx context.Context, id string) (*domain.Wallet, error)
	GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error)
	// GetWalletByPayment resolves the wallet reached by any ledger entry
	// tied to the payment's journals. Used for lazily-discovered wallets.
	GetWalletByPayment(ctx context.Context, paymentID string) (*domain.Wallet, error)

	// Balances
	GetBalance(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error)
	// GetBalanceForUpdate locks the balance row for the rest of the unit
	// of work. Outside a transaction it behaves like GetBalance.
	GetBalanceForUpdate(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error)
	// ApplyBalanceDelta adds delta to the (wallet, account) balance,
	// creating the row at zero first if absent.
	ApplyBalanceDelta(ctx context.Context, walletID string, account domain.AccountType, delta money.Amount) (*domain.Balance, error)
	ListBalances(ctx context.Context, walletID string) ([]*domain.Balance, error)

	// Payments
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p *domain.Payment) error

	// Journals
	CreateJournal(ctx context.Context, j *domain.Journal) error
	GetJournal(ctx context.Context, id string) (*domain.Journal, error)
	GetJournalForUpdate(ctx context.Context, id string) (*domain.Journal, error)
	// PendingJournalByPayment returns the pending journal keyed to the
	// payment, the idempotency lookup gateway callbacks rely on.
	PendingJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error)
	// PostedJournalByPayment returns the posted journal keyed to the
	// payment, used when refunding a captured payment.
	PostedJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error)
	UpdateJournal(ctx context.Context, j *domain.Journal) error
	CancelPendingJournalsByPayment(ctx context.Context, paymentID string) error

	// Ledger entries
	// UpsertLedgerEntry inserts the entry or, when one already exists for
	// the (journal, wallet, account) key, overwrites its amount,
	// direction and description so callback replays converge.
	UpsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	EntriesByJournal(ctx context.Context, journalID string) ([]*domain.LedgerEntry, error)
	ListJournalsByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Journal, int64, error)

	// Withdrawals
	CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error
	ListWithdrawalsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.WithdrawalRequest, int64, error)
}

// Package store provides the Postgres implementation of the wallet
// ledger store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketpay/internal/common/database"
	"marketpay/internal/common/money"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
)

// Store provides wallet ledger data access backed by Postgres.
type Store struct {
	db   *database.DB
	q    database.Querier
	inTx bool
}

// New creates a new wallet store.
func New(db *database.DB) *Store {
	return &Store{db: db, q: db}
}

var _ wallet.Store = (*Store)(nil)

// WithinTx runs fn against a transaction-bound store. A store already
// bound to a transaction joins it instead of opening a nested one.
func (s *Store) WithinTx(ctx context.Context, fn func(wallet.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{db: s.db, q: tx, inTx: true})
	})
}

// CreateWallet creates a new wallet.
func (s *Store) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, is_system, status, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.q.Exec(ctx, query,
		w.ID, w.UserID, w.IsSystem, w.Status, w.Currency, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("wallet for user %s already exists: %w", w.UserID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating wallet: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by ID.
func (s *Store) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, is_system, status, currency, created_at, updated_at
		FROM wallets
		WHERE id = $1
	`
	return scanWallet(s.q.QueryRow(ctx, query, id))
}

// GetWalletByUser retrieves the wallet owned by the given user.
func (s *Store) GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, is_system, status, currency, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`
	return scanWallet(s.q.QueryRow(ctx, query, userID))
}

// GetWalletByPayment resolves the wallet reached through the ledger
// entries of the payment's journals.
func (s *Store) GetWalletByPayment(ctx context.Context, paymentID string) (*domain.Wallet, error) {
	query := `
		SELECT w.id, w.user_id, w.is_system, w.status, w.currency, w.created_at, w.updated_at
		FROM wallets w
		JOIN wallet_ledger_entries e ON e.wallet_id = w.id
		JOIN wallet_journals j ON j.id = e.journal_id
		WHERE j.payment_id = $1
		ORDER BY e.created_at
		LIMIT 1
	`
	return scanWallet(s.q.QueryRow(ctx, query, paymentID))
}

// GetBalance retrieves a wallet's balance for one account bucket.
func (s *Store) GetBalance(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error) {
	return s.getBalance(ctx, walletID, account, false)
}

// GetBalanceForUpdate retrieves a balance with a row lock held for the
// rest of the transaction.
func (s *Store) GetBalanceForUpdate(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error) {
	return s.getBalance(ctx, walletID, account, s.inTx)
}

func (s *Store) getBalance(ctx context.Context, walletID string, account domain.AccountType, lock bool) (*domain.Balance, error) {
	query := `
		SELECT id, wallet_id, account, amount, updated_at
		FROM wallet_balances
		WHERE wallet_id = $1 AND account = $2
	`
	if lock {
		query += ` FOR UPDATE`
	}

	var b domain.Balance
	var amount int64
	err := s.q.QueryRow(ctx, query, walletID, account).Scan(
		&b.ID, &b.WalletID, &b.Account, &amount, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning balance: %w", err)
	}
	b.Amount = money.Amount(amount)
	return &b, nil
}

// ApplyBalanceDelta adds delta to the (wallet, account) balance, creating
// the row at zero first when absent, and returns the updated balance.
func (s *Store) ApplyBalanceDelta(ctx context.Context, walletID string, account domain.AccountType, delta money.Amount) (*domain.Balance, error) {
	query := `
		INSERT INTO wallet_balances (id, wallet_id, account, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id, account)
		DO UPDATE SET amount = wallet_balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING id, wallet_id, account, amount, updated_at
	`

	var b domain.Balance
	var amount int64
	err := s.q.QueryRow(ctx, query,
		newBalanceID(walletID, account), walletID, account, delta.Int64(), time.Now().UTC(),
	).Scan(&b.ID, &b.WalletID, &b.Account, &amount, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("applying balance delta: %w", err)
	}
	b.Amount = money.Amount(amount)
	return &b, nil
}

// ListBalances lists a wallet's balances across all account buckets.
func (s *Store) ListBalances(ctx context.Context, walletID string) ([]*domain.Balance, error) {
	query := `
		SELECT id, wallet_id, account, amount, updated_at
		FROM wallet_balances
		WHERE wallet_id = $1
		ORDER BY account
	`

	rows, err := s.q.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("listing balances: %w", err)
	}
	defer rows.Close()

	var balances []*domain.Balance
	for rows.Next() {
		var b domain.Balance
		var amount int64
		if err := rows.Scan(&b.ID, &b.WalletID, &b.Account, &amount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		b.Amount = money.Amount(amount)
		balances = append(balances, &b)
	}
	return balances, rows.Err()
}

// CreatePayment creates a new payment.
func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, user_id, amount, refund_amount, provider, status,
			gateway_txn_id, client_ip, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.q.Exec(ctx, query,
		p.ID, nullStr(p.BookingID), nullStr(p.UserID), p.Amount.Int64(), p.RefundAmount.Int64(),
		p.Provider, p.Status, nullStr(p.GatewayTxnID), nullStr(p.ClientIP), p.PaidAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("payment %s already exists: %w", p.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID.
func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.getPayment(ctx, id, false)
}

// GetPaymentForUpdate retrieves a payment with a row lock held for the
// rest of the transaction.
func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return s.getPayment(ctx, id, s.inTx)
}

func (s *Store) getPayment(ctx context.Context, id string, lock bool) (*domain.Payment, error) {
	query := `
		SELECT id, booking_id, user_id, amount, refund_amount, provider, status,
		       gateway_txn_id, client_ip, paid_at, created_at, updated_at
		FROM payments
		WHERE id = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanPayment(s.q.QueryRow(ctx, query, id))
}

// UpdatePayment persists the payment's mutable fields.
func (s *Store) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		UPDATE payments
		SET booking_id = $2, user_id = $3, refund_amount = $4, status = $5,
		    gateway_txn_id = $6, client_ip = $7, paid_at = $8, updated_at = $9
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		p.ID, nullStr(p.BookingID), nullStr(p.UserID), p.RefundAmount.Int64(), p.Status,
		nullStr(p.GatewayTxnID), nullStr(p.ClientIP), p.PaidAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CreateJournal creates a new journal.
func (s *Store) CreateJournal(ctx context.Context, j *domain.Journal) error {
	query := `
		INSERT INTO wallet_journals (id, booking_id, payment_id, type, status, amount, created_at, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.q.Exec(ctx, query,
		j.ID, nullStr(j.BookingID), nullStr(j.PaymentID), j.Type, j.Status,
		j.Amount.Int64(), j.CreatedAt, j.PostedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("journal %s already exists: %w", j.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating journal: %w", err)
	}
	return nil
}

// GetJournal retrieves a journal by ID.
func (s *Store) GetJournal(ctx context.Context, id string) (*domain.Journal, error) {
	return s.getJournal(ctx, id, false)
}

// GetJournalForUpdate retrieves a journal with a row lock held for the
// rest of the transaction.
func (s *Store) GetJournalForUpdate(ctx context.Context, id string) (*domain.Journal, error) {
	return s.getJournal(ctx, id, s.inTx)
}

func (s *Store) getJournal(ctx context.Context, id string, lock bool) (*domain.Journal, error) {
	query := `
		SELECT id, booking_id, payment_id, type, status, amount, created_at, posted_at
		FROM wallet_journals
		WHERE id = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanJournal(s.q.QueryRow(ctx, query, id))
}

// PendingJournalByPayment returns the pending journal keyed to a payment.
func (s *Store) PendingJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error) {
	return s.journalByPaymentStatus(ctx, paymentID, domain.JournalStatusPending)
}

// PostedJournalByPayment returns the posted journal keyed to a payment.
func (s *Store) PostedJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error) {
	return s.journalByPaymentStatus(ctx, paymentID, domain.JournalStatusPosted)
}

func (s *Store) journalByPaymentStatus(ctx context.Context, paymentID string, status domain.JournalStatus) (*domain.Journal, error) {
	query := `
		SELECT id, booking_id, payment_id, type, status, amount, created_at, posted_at
		FROM wallet_journals
		WHERE payment_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT 1
	`
	if s.inTx {
		query += ` FOR UPDATE`
	}
	return scanJournal(s.q.QueryRow(ctx, query, paymentID, status))
}

// UpdateJournal persists the journal's status fields.
func (s *Store) UpdateJournal(ctx context.Context, j *domain.Journal) error {
	query := `
		UPDATE wallet_journals
		SET booking_id = $2, payment_id = $3, status = $4, posted_at = $5
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		j.ID, nullStr(j.BookingID), nullStr(j.PaymentID), j.Status, j.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("updating journal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CancelPendingJournalsByPayment cancels every still-pending journal
// keyed to the payment.
func (s *Store) CancelPendingJournalsByPayment(ctx context.Context, paymentID string) error {
	query := `
		UPDATE wallet_journals
		SET status = $3
		WHERE payment_id = $1 AND status = $2
	`

	_, err := s.q.Exec(ctx, query, paymentID, domain.JournalStatusPending, domain.JournalStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancelling pending journals: %w", err)
	}
	return nil
}

// UpsertLedgerEntry inserts the entry or converges the existing row for
// the (journal, wallet, account) key on replay.
func (s *Store) UpsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO wallet_ledger_entries (id, journal_id, wallet_id, account, direction, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (journal_id, wallet_id, account)
		DO UPDATE SET direction = EXCLUDED.direction, amount = EXCLUDED.amount, description = EXCLUDED.description
	`

	_, err := s.q.Exec(ctx, query,
		e.ID, e.JournalID, e.WalletID, e.Account, e.Direction,
		e.Amount.Int64(), nullStr(e.Description), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting ledger entry: %w", err)
	}
	return nil
}

// EntriesByJournal lists a journal's ledger entries.
func (s *Store) EntriesByJournal(ctx context.Context, journalID string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, journal_id, wallet_id, account, direction, amount, description, created_at
		FROM wallet_ledger_entries
		WHERE journal_id = $1
		ORDER BY created_at
	`

	rows, err := s.q.Query(ctx, query, journalID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amount int64
		var description *string
		err := rows.Scan(&e.ID, &e.JournalID, &e.WalletID, &e.Account, &e.Direction,
			&amount, &description, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.Amount = money.Amount(amount)
		e.Description = deref(description)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListJournalsByWallet lists the journals that touched a wallet, newest
// first, with the total count for paging.
func (s *Store) ListJournalsByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Journal, int64, error) {
	countQuery := `
		SELECT COUNT(DISTINCT j.id)
		FROM wallet_journals j
		JOIN wallet_ledger_entries e ON e.journal_id = j.id
		WHERE e.wallet_id = $1
	`

	var total int64
	if err := s.q.QueryRow(ctx, countQuery, walletID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting journals: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT j.id, j.booking_id, j.payment_id, j.type, j.status, j.amount, j.created_at, j.posted_at
		FROM wallet_journals j
		JOIN wallet_ledger_entries e ON e.journal_id = j.id
		WHERE e.wallet_id = $1
		ORDER BY j.created_at DESC
		LIMIT %d OFFSET %d
	`, limit, offset)

	rows, err := s.q.Query(ctx, query, walletID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing journals: %w", err)
	}
	defer rows.Close()

	var journals []*domain.Journal
	for rows.Next() {
		j, err := scanJournalRows(rows)
		if err != nil {
			return nil, 0, err
		}
		journals = append(journals, j)
	}
	return journals, total, rows.Err()
}

// CreateWithdrawal creates a new withdrawal request.
func (s *Store) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawal_requests (
			id, wallet_id, user_id, amount, status, hold_journal_id, payout_journal_id,
			reject_reason, approved_at, completed_at, rejected_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.q.Exec(ctx, query,
		w.ID, w.WalletID, w.UserID, w.Amount.Int64(), w.Status,
		nullStr(w.HoldJournalID), nullStr(w.PayoutJournalID), nullStr(w.RejectReason),
		w.ApprovedAt, w.CompletedAt, w.RejectedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("withdrawal %s already exists: %w", w.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("creating withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal retrieves a withdrawal request by ID.
func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return s.getWithdrawal(ctx, id, false)
}

// GetWithdrawalForUpdate retrieves a withdrawal request with a row lock
// held for the rest of the transaction.
func (s *Store) GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return s.getWithdrawal(ctx, id, s.inTx)
}

func (s *Store) getWithdrawal(ctx context.Context, id string, lock bool) (*domain.WithdrawalRequest, error) {
	query := `
		SELECT id, wallet_id, user_id, amount, status, hold_journal_id, payout_journal_id,
		       reject_reason, approved_at, completed_at, rejected_at, created_at, updated_at
		FROM withdrawal_requests
		WHERE id = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanWithdrawal(s.q.QueryRow(ctx, query, id))
}

// UpdateWithdrawal persists the withdrawal's mutable fields.
func (s *Store) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $2, hold_journal_id = $3, payout_journal_id = $4, reject_reason = $5,
		    approved_at = $6, completed_at = $7, rejected_at = $8, updated_at = $9
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		w.ID, w.Status, nullStr(w.HoldJournalID), nullStr(w.PayoutJournalID), nullStr(w.RejectReason),
		w.ApprovedAt, w.CompletedAt, w.RejectedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListWithdrawalsByUser lists a user's withdrawal requests, newest first.
func (s *Store) ListWithdrawalsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.WithdrawalRequest, int64, error) {
	countQuery := `SELECT COUNT(*) FROM withdrawal_requests WHERE user_id = $1`

	var total int64
	if err := s.q.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting withdrawals: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, wallet_id, user_id, amount, status, hold_journal_id, payout_journal_id,
		       reject_reason, approved_at, completed_at, rejected_at, created_at, updated_at
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, limit, offset)

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawalRows(rows)
		if err != nil {
			return nil, 0, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, total, rows.Err()
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.IsSystem, &w.Status, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning wallet: %w", err)
	}
	return &w, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount, refundAmount int64
	var bookingID, userID, gatewayTxnID, clientIP *string
	err := row.Scan(
		&p.ID, &bookingID, &userID, &amount, &refundAmount, &p.Provider, &p.Status,
		&gatewayTxnID, &clientIP, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning payment: %w", err)
	}
	p.Amount = money.Amount(amount)
	p.RefundAmount = money.Amount(refundAmount)
	p.BookingID = deref(bookingID)
	p.UserID = deref(userID)
	p.GatewayTxnID = deref(gatewayTxnID)
	p.ClientIP = deref(clientIP)
	return &p, nil
}

func scanJournal(row pgx.Row) (*domain.Journal, error) {
	var j domain.Journal
	var amount int64
	var bookingID, paymentID *string
	err := row.Scan(&j.ID, &bookingID, &paymentID, &j.Type, &j.Status, &amount, &j.CreatedAt, &j.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	j.Amount = money.Amount(amount)
	j.BookingID = deref(bookingID)
	j.PaymentID = deref(paymentID)
	return &j, nil
}

func scanJournalRows(rows pgx.Rows) (*domain.Journal, error) {
	var j domain.Journal
	var amount int64
	var bookingID, paymentID *string
	err := rows.Scan(&j.ID, &bookingID, &paymentID, &j.Type, &j.Status, &amount, &j.CreatedAt, &j.PostedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	j.Amount = money.Amount(amount)
	j.BookingID = deref(bookingID)
	j.PaymentID = deref(paymentID)
	return &j, nil
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var amount int64
	var holdID, payoutID, reason *string
	err := row.Scan(
		&w.ID, &w.WalletID, &w.UserID, &amount, &w.Status, &holdID, &payoutID,
		&reason, &w.ApprovedAt, &w.CompletedAt, &w.RejectedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}
	w.Amount = money.Amount(amount)
	w.HoldJournalID = deref(holdID)
	w.PayoutJournalID = deref(payoutID)
	w.RejectReason = deref(reason)
	return &w, nil
}

func scanWithdrawalRows(rows pgx.Rows) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var amount int64
	var holdID, payoutID, reason *string
	err := rows.Scan(
		&w.ID, &w.WalletID, &w.UserID, &amount, &w.Status, &holdID, &payoutID,
		&reason, &w.ApprovedAt, &w.CompletedAt, &w.RejectedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}
	w.Amount = money.Amount(amount)
	w.HoldJournalID = deref(holdID)
	w.PayoutJournalID = deref(payoutID)
	w.RejectReason = deref(reason)
	return &w, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newBalanceID(walletID string, account domain.AccountType) string {
	return fmt.Sprintf("%s:%s", walletID, account)
}

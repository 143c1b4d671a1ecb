// Package wallettest provides an in-memory wallet.Store for tests. It
// honors the unit-of-work contract: mutations inside WithinTx are rolled
// back when fn returns an error, and getters return copies so staged
// edits only land through the Update methods.
package wallettest

import (
	"context"
	"sort"
	"sync"

	"marketpay/internal/common/database"
	"marketpay/internal/common/money"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
)

type state struct {
	wallets     map[string]*domain.Wallet
	balances    map[string]*domain.Balance // walletID|account
	payments    map[string]*domain.Payment
	journals    map[string]*domain.Journal
	entries     map[string]*domain.LedgerEntry // journalID|walletID|account
	entryOrder  []string
	withdrawals map[string]*domain.WithdrawalRequest
}

// Store is an in-memory wallet.Store.
type Store struct {
	mu   *sync.Mutex
	inTx bool
	st   *state
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			wallets:     make(map[string]*domain.Wallet),
			balances:    make(map[string]*domain.Balance),
			payments:    make(map[string]*domain.Payment),
			journals:    make(map[string]*domain.Journal),
			entries:     make(map[string]*domain.LedgerEntry),
			withdrawals: make(map[string]*domain.WithdrawalRequest),
		},
	}
}

var _ wallet.Store = (*Store)(nil)

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

// WithinTx runs fn under the store lock and rolls every mutation back if
// fn fails. Nested calls join the running transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(wallet.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.snapshot()
	if err := fn(&Store{mu: s.mu, inTx: true, st: s.st}); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

func (st *state) snapshot() state {
	copied := state{
		wallets:     make(map[string]*domain.Wallet, len(st.wallets)),
		balances:    make(map[string]*domain.Balance, len(st.balances)),
		payments:    make(map[string]*domain.Payment, len(st.payments)),
		journals:    make(map[string]*domain.Journal, len(st.journals)),
		entries:     make(map[string]*domain.LedgerEntry, len(st.entries)),
		entryOrder:  append([]string(nil), st.entryOrder...),
		withdrawals: make(map[string]*domain.WithdrawalRequest, len(st.withdrawals)),
	}
	for k, v := range st.wallets {
		copied.wallets[k] = cloneWallet(v)
	}
	for k, v := range st.balances {
		copied.balances[k] = cloneBalance(v)
	}
	for k, v := range st.payments {
		copied.payments[k] = clonePayment(v)
	}
	for k, v := range st.journals {
		copied.journals[k] = cloneJournal(v)
	}
	for k, v := range st.entries {
		copied.entries[k] = cloneEntry(v)
	}
	for k, v := range st.withdrawals {
		copied.withdrawals[k] = cloneWithdrawal(v)
	}
	return copied
}

func balanceKey(walletID string, account domain.AccountType) string {
	return walletID + "|" + string(account)
}

func entryKey(journalID, walletID string, account domain.AccountType) string {
	return journalID + "|" + walletID + "|" + string(account)
}

// CreateWallet creates a wallet, enforcing the one-wallet-per-user key.
func (s *Store) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.wallets[w.ID]; ok {
		return database.ErrAlreadyExists
	}
	for _, existing := range s.st.wallets {
		if existing.UserID == w.UserID {
			return database.ErrAlreadyExists
		}
	}
	s.st.wallets[w.ID] = cloneWallet(w)
	return nil
}

func (s *Store) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	s.lock()
	defer s.unlock()
	w, ok := s.st.wallets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneWallet(w), nil
}

func (s *Store) GetWalletByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	s.lock()
	defer s.unlock()
	for _, w := range s.st.wallets {
		if w.UserID == userID {
			return cloneWallet(w), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetWalletByPayment(ctx context.Context, paymentID string) (*domain.Wallet, error) {
	s.lock()
	defer s.unlock()
	for _, key := range s.st.entryOrder {
		e := s.st.entries[key]
		j, ok := s.st.journals[e.JournalID]
		if !ok || j.PaymentID != paymentID {
			continue
		}
		if w, ok := s.st.wallets[e.WalletID]; ok {
			return cloneWallet(w), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *Store) GetBalance(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error) {
	s.lock()
	defer s.unlock()
	b, ok := s.st.balances[balanceKey(walletID, account)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneBalance(b), nil
}

func (s *Store) GetBalanceForUpdate(ctx context.Context, walletID string, account domain.AccountType) (*domain.Balance, error) {
	return s.GetBalance(ctx, walletID, account)
}

func (s *Store) ApplyBalanceDelta(ctx context.Context, walletID string, account domain.AccountType, delta money.Amount) (*domain.Balance, error) {
	s.lock()
	defer s.unlock()
	key := balanceKey(walletID, account)
	b, ok := s.st.balances[key]
	if !ok {
		b = &domain.Balance{ID: key, WalletID: walletID, Account: account}
		s.st.balances[key] = b
	}
	b.Amount += delta
	return cloneBalance(b), nil
}

func (s *Store) ListBalances(ctx context.Context, walletID string) ([]*domain.Balance, error) {
	s.lock()
	defer s.unlock()
	var out []*domain.Balance
	for _, b := range s.st.balances {
		if b.WalletID == walletID {
			out = append(out, cloneBalance(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.payments[p.ID]; ok {
		return database.ErrAlreadyExists
	}
	s.st.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	s.lock()
	defer s.unlock()
	p, ok := s.st.payments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *Store) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.payments[p.ID]; !ok {
		return database.ErrNotFound
	}
	s.st.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *Store) CreateJournal(ctx context.Context, j *domain.Journal) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.journals[j.ID]; ok {
		return database.ErrAlreadyExists
	}
	s.st.journals[j.ID] = cloneJournal(j)
	return nil
}

func (s *Store) GetJournal(ctx context.Context, id string) (*domain.Journal, error) {
	s.lock()
	defer s.unlock()
	j, ok := s.st.journals[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneJournal(j), nil
}

func (s *Store) GetJournalForUpdate(ctx context.Context, id string) (*domain.Journal, error) {
	return s.GetJournal(ctx, id)
}

func (s *Store) PendingJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error) {
	return s.journalByPaymentStatus(paymentID, domain.JournalStatusPending)
}

func (s *Store) PostedJournalByPayment(ctx context.Context, paymentID string) (*domain.Journal, error) {
	return s.journalByPaymentStatus(paymentID, domain.JournalStatusPosted)
}

func (s *Store) journalByPaymentStatus(paymentID string, status domain.JournalStatus) (*domain.Journal, error) {
	s.lock()
	defer s.unlock()
	var match *domain.Journal
	for _, j := range s.st.journals {
		if j.PaymentID != paymentID || j.Status != status {
			continue
		}
		if match == nil || j.CreatedAt.Before(match.CreatedAt) {
			match = j
		}
	}
	if match == nil {
		return nil, database.ErrNotFound
	}
	return cloneJournal(match), nil
}

func (s *Store) UpdateJournal(ctx context.Context, j *domain.Journal) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.journals[j.ID]; !ok {
		return database.ErrNotFound
	}
	s.st.journals[j.ID] = cloneJournal(j)
	return nil
}

func (s *Store) CancelPendingJournalsByPayment(ctx context.Context, paymentID string) error {
	s.lock()
	defer s.unlock()
	for _, j := range s.st.journals {
		if j.PaymentID == paymentID && j.Status == domain.JournalStatusPending {
			j.Status = domain.JournalStatusCancelled
		}
	}
	return nil
}

func (s *Store) UpsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	s.lock()
	defer s.unlock()
	key := entryKey(e.JournalID, e.WalletID, e.Account)
	if existing, ok := s.st.entries[key]; ok {
		existing.Direction = e.Direction
		existing.Amount = e.Amount
		existing.Description = e.Description
		return nil
	}
	s.st.entries[key] = cloneEntry(e)
	s.st.entryOrder = append(s.st.entryOrder, key)
	return nil
}

func (s *Store) EntriesByJournal(ctx context.Context, journalID string) ([]*domain.LedgerEntry, error) {
	s.lock()
	defer s.unlock()
	var out []*domain.LedgerEntry
	for _, key := range s.st.entryOrder {
		e := s.st.entries[key]
		if e.JournalID == journalID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *Store) ListJournalsByWallet(ctx context.Context, walletID string, limit, offset int) ([]*domain.Journal, int64, error) {
	s.lock()
	defer s.unlock()
	seen := make(map[string]bool)
	var matched []*domain.Journal
	for _, key := range s.st.entryOrder {
		e := s.st.entries[key]
		if e.WalletID != walletID || seen[e.JournalID] {
			continue
		}
		seen[e.JournalID] = true
		if j, ok := s.st.journals[e.JournalID]; ok {
			matched = append(matched, cloneJournal(j))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.withdrawals[w.ID]; ok {
		return database.ErrAlreadyExists
	}
	s.st.withdrawals[w.ID] = cloneWithdrawal(w)
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	s.lock()
	defer s.unlock()
	w, ok := s.st.withdrawals[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneWithdrawal(w), nil
}

func (s *Store) GetWithdrawalForUpdate(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	return s.GetWithdrawal(ctx, id)
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w *domain.WithdrawalRequest) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.withdrawals[w.ID]; !ok {
		return database.ErrNotFound
	}
	s.st.withdrawals[w.ID] = cloneWithdrawal(w)
	return nil
}

func (s *Store) ListWithdrawalsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.WithdrawalRequest, int64, error) {
	s.lock()
	defer s.unlock()
	var matched []*domain.WithdrawalRequest
	for _, w := range s.st.withdrawals {
		if w.UserID == userID {
			matched = append(matched, cloneWithdrawal(w))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// BalanceAmount is a test convenience returning the raw amount for a
// (wallet, account) bucket, zero when the row does not exist.
func (s *Store) BalanceAmount(walletID string, account domain.AccountType) money.Amount {
	s.lock()
	defer s.unlock()
	b, ok := s.st.balances[balanceKey(walletID, account)]
	if !ok {
		return 0
	}
	return b.Amount
}

// JournalCount is a test convenience counting journals of a type.
func (s *Store) JournalCount(jtype domain.JournalType) int {
	s.lock()
	defer s.unlock()
	n := 0
	for _, j := range s.st.journals {
		if j.Type == jtype {
			n++
		}
	}
	return n
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func cloneBalance(b *domain.Balance) *domain.Balance {
	c := *b
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func cloneJournal(j *domain.Journal) *domain.Journal {
	c := *j
	if j.PostedAt != nil {
		t := *j.PostedAt
		c.PostedAt = &t
	}
	c.Entries = nil
	return &c
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	return &c
}

func cloneWithdrawal(w *domain.WithdrawalRequest) *domain.WithdrawalRequest {
	c := *w
	if w.ApprovedAt != nil {
		t := *w.ApprovedAt
		c.ApprovedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	if w.RejectedAt != nil {
		t := *w.RejectedAt
		c.RejectedAt = &t
	}
	return &c
}

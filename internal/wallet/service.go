// Package wallet implements the wallet capture engine and the balance,
// refund and dispute operations built on the ledger store primitives.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/database"
	"marketpay/internal/common/events"
	"marketpay/internal/common/money"
	"marketpay/internal/wallet/domain"
)

// Service provides wallet ledger operations.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new wallet service.
func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Store exposes the underlying ledger store for collaborating services.
func (s *Service) Store() Store { return s.store }

// CaptureResult reports the outcome of a wallet-funded capture.
type CaptureResult struct {
	NoOp            bool         `json:"no_op"`
	HoldJournalID   string       `json:"hold_journal_id"`
	PayoutJournalID string       `json:"payout_journal_id,omitempty"`
	Available       money.Amount `json:"available"`
	Escrow          money.Amount `json:"escrow"`
}

// CaptureFromWallet settles a wallet-funded booking payment: it debits the
// available bucket, credits escrow, posts the hold journal and opens a
// posted companion payout journal. Re-running against an already posted
// hold is a no-op. All failures leave balances unchanged.
func (s *Service) CaptureFromWallet(ctx context.Context, walletID, userID, holdJournalID string, amount money.Amount) (*CaptureResult, error) {
	if err := money.ValidatePositive(amount); err != nil {
		return nil, domain.ErrAmountInvalid
	}

	result := &CaptureResult{HoldJournalID: holdJournalID}
	var posted []*domain.Journal

	err := s.store.WithinTx(ctx, func(tx Store) error {
		w, err := tx.GetWallet(ctx, walletID)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrWalletNotFound
			}
			return fmt.Errorf("loading wallet: %w", err)
		}
		if w.UserID != userID {
			return domain.ErrUserMismatch
		}

		hold, err := tx.GetJournalForUpdate(ctx, holdJournalID)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrHoldMissing
			}
			return fmt.Errorf("loading hold journal: %w", err)
		}
		if hold.Type != domain.JournalHold {
			return domain.ErrHoldMissing
		}
		if hold.IsPosted() {
			// concurrent capture already settled this hold
			result.NoOp = true
			return nil
		}

		available, err := tx.GetBalanceForUpdate(ctx, walletID, domain.AccountAvailable)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrAvailableMissing
			}
			return fmt.Errorf("loading available balance: %w", err)
		}
		if !available.CanDebit(amount) {
			return domain.ErrInsufficientFunds
		}

		availableAfter, err := tx.ApplyBalanceDelta(ctx, walletID, domain.AccountAvailable, -amount)
		if err != nil {
			return fmt.Errorf("debiting available: %w", err)
		}
		escrowAfter, err := tx.ApplyBalanceDelta(ctx, walletID, domain.AccountEscrow, amount)
		if err != nil {
			return fmt.Errorf("crediting escrow: %w", err)
		}

		if err := hold.Post(); err != nil {
			return err
		}
		if err := tx.UpdateJournal(ctx, hold); err != nil {
			return fmt.Errorf("posting hold journal: %w", err)
		}

		payout, err := domain.NewJournal(ulid.Make().String(), domain.JournalPayout, amount)
		if err != nil {
			return err
		}
		payout.BookingID = hold.BookingID
		if err := payout.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, payout); err != nil {
			return fmt.Errorf("creating payout journal: %w", err)
		}

		holdEntry, err := domain.NewLedgerEntry(ulid.Make().String(), hold.ID, walletID,
			domain.AccountAvailable, domain.EntryDebit, amount, "booking hold captured from wallet")
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, holdEntry); err != nil {
			return fmt.Errorf("writing hold entry: %w", err)
		}

		payoutEntry, err := domain.NewLedgerEntry(ulid.Make().String(), payout.ID, walletID,
			domain.AccountEscrow, domain.EntryCredit, amount, "escrow funded for booking payout")
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, payoutEntry); err != nil {
			return fmt.Errorf("writing payout entry: %w", err)
		}

		result.PayoutJournalID = payout.ID
		result.Available = availableAfter.Amount
		result.Escrow = escrowAfter.Amount
		posted = append(posted, hold, payout)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, j := range posted {
		s.publishJournalPosted(ctx, j, walletID)
	}

	if !result.NoOp {
		s.logger.Info("wallet capture settled",
			"wallet_id", walletID,
			"hold_journal_id", holdJournalID,
			"payout_journal_id", result.PayoutJournalID,
			"amount", amount.Int64(),
		)
	}

	return result, nil
}

// Refund posts a refund against a captured payment, returning funds out of
// the bucket the capture credited.
func (s *Service) Refund(ctx context.Context, paymentID string, amount money.Amount, reason string) (*domain.Journal, error) {
	if err := money.ValidatePositive(amount); err != nil {
		return nil, domain.ErrAmountInvalid
	}

	var refund *domain.Journal
	var walletID string

	err := s.store.WithinTx(ctx, func(tx Store) error {
		p, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrPaymentNotFound
			}
			return fmt.Errorf("loading payment: %w", err)
		}
		if err := p.RecordRefund(amount); err != nil {
			return err
		}

		captured, err := tx.PostedJournalByPayment(ctx, paymentID)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrJournalNotFound
			}
			return fmt.Errorf("loading captured journal: %w", err)
		}
		account, _, ok := domain.GatewayEffect(captured.Type)
		if !ok {
			return domain.ErrJournalNotFound
		}

		w, err := tx.GetWalletByPayment(ctx, paymentID)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrWalletNotFound
			}
			return fmt.Errorf("resolving wallet: %w", err)
		}
		walletID = w.ID

		balance, err := tx.GetBalanceForUpdate(ctx, w.ID, account)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("loading balance: %w", err)
		}
		if !balance.CanDebit(amount) {
			return domain.ErrInsufficientFunds
		}
		if _, err := tx.ApplyBalanceDelta(ctx, w.ID, account, -amount); err != nil {
			return fmt.Errorf("debiting %s: %w", account, err)
		}

		refund, err = domain.NewJournal(ulid.Make().String(), domain.JournalRefund, amount)
		if err != nil {
			return err
		}
		refund.PaymentID = paymentID
		refund.BookingID = captured.BookingID
		if err := refund.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, refund); err != nil {
			return fmt.Errorf("creating refund journal: %w", err)
		}

		entry, err := domain.NewLedgerEntry(ulid.Make().String(), refund.ID, w.ID,
			account, domain.EntryDebit, amount, "refund: "+reason)
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("writing refund entry: %w", err)
		}

		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.publishJournalPosted(ctx, refund, walletID)
	s.logger.Info("refund posted",
		"payment_id", paymentID,
		"journal_id", refund.ID,
		"amount", amount.Int64(),
	)
	return refund, nil
}

// DisputeFreeze moves funds from available to frozen against a dispute.
func (s *Service) DisputeFreeze(ctx context.Context, walletID string, amount money.Amount, disputeRef string) (*domain.Journal, error) {
	return s.moveBetweenBuckets(ctx, walletID, amount,
		domain.JournalDisputeFreeze, domain.AccountAvailable, domain.AccountFrozen,
		"dispute freeze: "+disputeRef)
}

// DisputeRelease returns previously frozen dispute funds to available.
func (s *Service) DisputeRelease(ctx context.Context, walletID string, amount money.Amount, disputeRef string) (*domain.Journal, error) {
	return s.moveBetweenBuckets(ctx, walletID, amount,
		domain.JournalDisputeRelease, domain.AccountFrozen, domain.AccountAvailable,
		"dispute release: "+disputeRef)
}

// moveBetweenBuckets debits one account bucket and credits another inside a
// single posted journal with paired ledger entries.
func (s *Service) moveBetweenBuckets(ctx context.Context, walletID string, amount money.Amount, jtype domain.JournalType, from, to domain.AccountType, description string) (*domain.Journal, error) {
	if err := money.ValidatePositive(amount); err != nil {
		return nil, domain.ErrAmountInvalid
	}

	var journal *domain.Journal

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.GetWallet(ctx, walletID); err != nil {
			if database.IsNotFound(err) {
				return domain.ErrWalletNotFound
			}
			return fmt.Errorf("loading wallet: %w", err)
		}

		source, err := tx.GetBalanceForUpdate(ctx, walletID, from)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("loading %s balance: %w", from, err)
		}
		if !source.CanDebit(amount) {
			return domain.ErrInsufficientFunds
		}

		if _, err := tx.ApplyBalanceDelta(ctx, walletID, from, -amount); err != nil {
			return fmt.Errorf("debiting %s: %w", from, err)
		}
		if _, err := tx.ApplyBalanceDelta(ctx, walletID, to, amount); err != nil {
			return fmt.Errorf("crediting %s: %w", to, err)
		}

		journal, err = domain.NewJournal(ulid.Make().String(), jtype, amount)
		if err != nil {
			return err
		}
		if err := journal.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, journal); err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}

		debit, err := domain.NewLedgerEntry(ulid.Make().String(), journal.ID, walletID,
			from, domain.EntryDebit, amount, description)
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, debit); err != nil {
			return fmt.Errorf("writing debit entry: %w", err)
		}

		credit, err := domain.NewLedgerEntry(ulid.Make().String(), journal.ID, walletID,
			to, domain.EntryCredit, amount, description)
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, credit); err != nil {
			return fmt.Errorf("writing credit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishJournalPosted(ctx, journal, walletID)
	return journal, nil
}

// EnsureWallet returns the user's wallet, creating an active one if none
// exists yet.
func (s *Service) EnsureWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := s.store.GetWalletByUser(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}

	w, err = domain.NewWallet(ulid.Make().String(), userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		// lost a creation race; the existing wallet wins
		if database.IsUniqueViolation(err) {
			return s.store.GetWalletByUser(ctx, userID)
		}
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	s.publish(ctx, events.EventWalletCreated, "wallet", w.ID, events.WalletCreatedData{
		WalletID: w.ID,
		UserID:   w.UserID,
		IsSystem: w.IsSystem,
	})
	return w, nil
}

// Balances returns the wallet's per-account balances.
func (s *Service) Balances(ctx context.Context, walletID string) ([]*domain.Balance, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return s.store.ListBalances(ctx, walletID)
}

// Statement lists the wallet's journals with their ledger entries.
func (s *Service) Statement(ctx context.Context, walletID string, limit, offset int) ([]*domain.Journal, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	journals, total, err := s.store.ListJournalsByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, j := range journals {
		entries, err := s.store.EntriesByJournal(ctx, j.ID)
		if err != nil {
			return nil, 0, err
		}
		j.Entries = entries
	}
	return journals, total, nil
}

func (s *Service) publishJournalPosted(ctx context.Context, j *domain.Journal, walletID string) {
	if j == nil || !j.IsPosted() {
		return
	}
	s.publish(ctx, events.EventJournalPosted, "wallet_journal", j.ID, events.JournalPostedData{
		JournalID: j.ID,
		Type:      string(j.Type),
		WalletID:  walletID,
		PaymentID: j.PaymentID,
		BookingID: j.BookingID,
		Amount:    j.Amount.Int64(),
	})
}

func (s *Service) publish(ctx context.Context, eventType, aggregateType, aggregateID string, data interface{}) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, aggregateType, aggregateID, data)
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

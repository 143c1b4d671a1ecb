// Package withdrawal implements the withdrawal request lifecycle: funds
// are frozen on creation, paid out on completion, and restored on
// rejection, with every transition validated against the state machine.
package withdrawal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/database"
	"marketpay/internal/common/events"
	"marketpay/internal/common/money"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
)

// Service manages withdrawal requests.
type Service struct {
	store     wallet.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a new withdrawal service.
func NewService(store wallet.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger}
}

// Create opens a withdrawal request: it validates ownership and available
// funds, moves the amount from available to frozen and records the hold
// journal.
func (s *Service) Create(ctx context.Context, walletID, userID string, amount money.Amount) (*domain.WithdrawalRequest, error) {
	if err := money.ValidatePositive(amount); err != nil {
		return nil, domain.ErrAmountInvalid
	}

	var request *domain.WithdrawalRequest

	err := s.store.WithinTx(ctx, func(tx wallet.Store) error {
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

		available, err := tx.GetBalanceForUpdate(ctx, walletID, domain.AccountAvailable)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("loading available balance: %w", err)
		}
		if !available.CanDebit(amount) {
			return domain.ErrInsufficientFunds
		}

		if _, err := tx.ApplyBalanceDelta(ctx, walletID, domain.AccountAvailable, -amount); err != nil {
			return fmt.Errorf("debiting available: %w", err)
		}
		if _, err := tx.ApplyBalanceDelta(ctx, walletID, domain.AccountFrozen, amount); err != nil {
			return fmt.Errorf("crediting frozen: %w", err)
		}

		hold, err := domain.NewJournal(ulid.Make().String(), domain.JournalWithdrawalHold, amount)
		if err != nil {
			return err
		}
		if err := hold.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, hold); err != nil {
			return fmt.Errorf("creating hold journal: %w", err)
		}

		entry, err := domain.NewLedgerEntry(ulid.Make().String(), hold.ID, walletID,
			domain.AccountAvailable, domain.EntryDebit, amount, "withdrawal hold")
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("writing hold entry: %w", err)
		}

		request, err = domain.NewWithdrawalRequest(ulid.Make().String(), walletID, userID, amount)
		if err != nil {
			return err
		}
		request.HoldJournalID = hold.ID
		return tx.CreateWithdrawal(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal created",
		"withdrawal_id", request.ID,
		"wallet_id", walletID,
		"amount", amount.Int64(),
	)
	s.publishStatusChange(ctx, request, "", "")

	return request, nil
}

// UpdateStatus drives a withdrawal to the target status through the
// state machine. A transition to the status the request already holds is
// a no-op, except that a rejected request may still have its reason
// updated.
func (s *Service) UpdateStatus(ctx context.Context, id string, target domain.WithdrawalStatus, reason string) (*domain.WithdrawalRequest, error) {
	switch target {
	case domain.WithdrawalApproved:
		return s.approve(ctx, id)
	case domain.WithdrawalCompleted:
		return s.complete(ctx, id)
	case domain.WithdrawalRejected:
		return s.reject(ctx, id, reason)
	default:
		return nil, domain.ErrInvalidStatusTransition
	}
}

// Get retrieves a withdrawal request.
func (s *Service) Get(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	request, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrWithdrawalNotFound
		}
		return nil, err
	}
	return request, nil
}

// ListByUser lists a user's withdrawal requests, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.WithdrawalRequest, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.ListWithdrawalsByUser(ctx, userID, limit, offset)
}

// approve is a metadata-only transition; no funds move.
func (s *Service) approve(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	var request *domain.WithdrawalRequest
	var from domain.WithdrawalStatus

	err := s.store.WithinTx(ctx, func(tx wallet.Store) error {
		w, err := s.lockWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		from = w.Status
		if err := w.Approve(); err != nil {
			return err
		}
		request = w
		return tx.UpdateWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(ctx, request, string(from), "")
	return request, nil
}

// complete pays out a withdrawal: frozen funds leave the wallet through a
// payout journal. Completing an already completed request is a no-op.
func (s *Service) complete(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	var request *domain.WithdrawalRequest
	var from domain.WithdrawalStatus

	err := s.store.WithinTx(ctx, func(tx wallet.Store) error {
		w, err := s.lockWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		from = w.Status
		if w.Status == domain.WithdrawalCompleted {
			request = w
			return nil
		}
		if !domain.CanWithdrawalTransition(w.Status, domain.WithdrawalCompleted) {
			return domain.ErrInvalidStatusTransition
		}

		frozen, err := tx.GetBalanceForUpdate(ctx, w.WalletID, domain.AccountFrozen)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("loading frozen balance: %w", err)
		}
		if !frozen.CanDebit(w.Amount) {
			return domain.ErrInsufficientFunds
		}
		if _, err := tx.ApplyBalanceDelta(ctx, w.WalletID, domain.AccountFrozen, -w.Amount); err != nil {
			return fmt.Errorf("debiting frozen: %w", err)
		}

		payout, err := domain.NewJournal(ulid.Make().String(), domain.JournalPayout, w.Amount)
		if err != nil {
			return err
		}
		if err := payout.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, payout); err != nil {
			return fmt.Errorf("creating payout journal: %w", err)
		}

		entry, err := domain.NewLedgerEntry(ulid.Make().String(), payout.ID, w.WalletID,
			domain.AccountFrozen, domain.EntryDebit, w.Amount, "withdrawal paid out")
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("writing payout entry: %w", err)
		}

		if err := w.Complete(payout.ID); err != nil {
			return err
		}
		request = w
		return tx.UpdateWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	if from != domain.WithdrawalCompleted {
		s.logger.Info("withdrawal completed",
			"withdrawal_id", request.ID,
			"wallet_id", request.WalletID,
			"amount", request.Amount.Int64(),
		)
		s.publishStatusChange(ctx, request, string(from), "")
	}
	return request, nil
}

// reject refuses a withdrawal and restores the held funds to available.
// Rejecting an already rejected request only updates the reason.
func (s *Service) reject(ctx context.Context, id string, reason string) (*domain.WithdrawalRequest, error) {
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}

	var request *domain.WithdrawalRequest
	var from domain.WithdrawalStatus

	err := s.store.WithinTx(ctx, func(tx wallet.Store) error {
		w, err := s.lockWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		from = w.Status
		if w.Status == domain.WithdrawalRejected {
			if err := w.Reject(reason); err != nil {
				return err
			}
			request = w
			return tx.UpdateWithdrawal(ctx, w)
		}
		if !domain.CanWithdrawalTransition(w.Status, domain.WithdrawalRejected) {
			return domain.ErrInvalidStatusTransition
		}

		frozen, err := tx.GetBalanceForUpdate(ctx, w.WalletID, domain.AccountFrozen)
		if err != nil {
			if database.IsNotFound(err) {
				return domain.ErrInsufficientFunds
			}
			return fmt.Errorf("loading frozen balance: %w", err)
		}
		if !frozen.CanDebit(w.Amount) {
			return domain.ErrInsufficientFunds
		}
		if _, err := tx.ApplyBalanceDelta(ctx, w.WalletID, domain.AccountFrozen, -w.Amount); err != nil {
			return fmt.Errorf("debiting frozen: %w", err)
		}
		if _, err := tx.ApplyBalanceDelta(ctx, w.WalletID, domain.AccountAvailable, w.Amount); err != nil {
			return fmt.Errorf("crediting available: %w", err)
		}

		release, err := domain.NewJournal(ulid.Make().String(), domain.JournalRelease, w.Amount)
		if err != nil {
			return err
		}
		if err := release.Post(); err != nil {
			return err
		}
		if err := tx.CreateJournal(ctx, release); err != nil {
			return fmt.Errorf("creating release journal: %w", err)
		}

		frozenEntry, err := domain.NewLedgerEntry(ulid.Make().String(), release.ID, w.WalletID,
			domain.AccountFrozen, domain.EntryDebit, w.Amount, "withdrawal rejected: "+reason)
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, frozenEntry); err != nil {
			return fmt.Errorf("writing frozen release entry: %w", err)
		}

		availableEntry, err := domain.NewLedgerEntry(ulid.Make().String(), release.ID, w.WalletID,
			domain.AccountAvailable, domain.EntryCredit, w.Amount, "withdrawal rejected: "+reason)
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, availableEntry); err != nil {
			return fmt.Errorf("writing available restore entry: %w", err)
		}

		if err := w.Reject(reason); err != nil {
			return err
		}
		request = w
		return tx.UpdateWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	if from != domain.WithdrawalRejected {
		s.logger.Info("withdrawal rejected",
			"withdrawal_id", request.ID,
			"wallet_id", request.WalletID,
			"amount", request.Amount.Int64(),
			"reason", reason,
		)
		s.publishStatusChange(ctx, request, string(from), reason)
	}
	return request, nil
}

func (s *Service) lockWithdrawal(ctx context.Context, tx wallet.Store, id string) (*domain.WithdrawalRequest, error) {
	w, err := tx.GetWithdrawalForUpdate(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("loading withdrawal: %w", err)
	}
	return w, nil
}

func (s *Service) publishStatusChange(ctx context.Context, w *domain.WithdrawalRequest, from, reason string) {
	if s.publisher == nil || w == nil {
		return
	}
	event, err := events.NewEvent(events.EventWithdrawalStatusChanged, "withdrawal_request", w.ID,
		events.WithdrawalStatusChangedData{
			WithdrawalID: w.ID,
			WalletID:     w.WalletID,
			UserID:       w.UserID,
			Amount:       w.Amount.Int64(),
			From:         from,
			To:           string(w.Status),
			Reason:       reason,
		})
	if err != nil {
		s.logger.Error("failed to build event", "type", events.EventWithdrawalStatusChanged, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", events.EventWithdrawalStatusChanged, "error", err)
	}
}

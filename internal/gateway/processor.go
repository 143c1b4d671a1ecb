package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/database"
	"marketpay/internal/common/events"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
)

// ReturnResult reports the outcome of processing one gateway return
// callback. A not-captured outcome carries the reason for logging and
// reconciliation; it is never surfaced as a transport fault.
type ReturnResult struct {
	Captured  bool   `json:"captured"`
	PaymentID string `json:"payment_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	WalletID  string `json:"wallet_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func notCaptured(reason string) *ReturnResult {
	return &ReturnResult{Captured: false, Reason: reason}
}

// Processor runs the shared gateway-return algorithm, parameterized by a
// per-provider strategy.
type Processor struct {
	store     wallet.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewProcessor creates a new gateway return processor.
func NewProcessor(store wallet.Store, publisher events.Publisher, logger *slog.Logger) *Processor {
	return &Processor{store: store, publisher: publisher, logger: logger}
}

// ProcessReturn applies one gateway return callback. Repeated delivery is
// safe: a replay for an already captured payment short-circuits to the
// same success without re-posting, and the amount check runs before the
// short-circuit so a replay carrying a different amount is rejected.
// Business failures come back inside the result; only store faults are
// returned as errors.
func (p *Processor) ProcessReturn(ctx context.Context, strategy Strategy, params Params) (*ReturnResult, error) {
	provider := strategy.Name()
	logger := p.logger.With("provider", string(provider))

	if !strategy.ConfigValid() {
		logger.Error("gateway configuration incomplete")
		return notCaptured("configuration incomplete"), nil
	}

	if !strategy.VerifySignature(params) {
		logger.Warn("callback signature verification failed")
		return notCaptured("invalid signature"), nil
	}

	userHint := strategy.UserHint(params)

	paymentID, ok := strategy.PaymentID(params)
	if !ok {
		logger.Warn("callback carries no resolvable payment id")
		return notCaptured("payment id missing"), nil
	}
	logger = logger.With("payment_id", paymentID)

	payment, err := p.store.GetPayment(ctx, paymentID)
	if err != nil {
		if database.IsNotFound(err) {
			logger.Warn("callback references unknown payment")
			return notCaptured("payment not found"), nil
		}
		return nil, fmt.Errorf("loading payment: %w", err)
	}

	amount, ok := strategy.Amount(params)
	if !ok || amount != payment.Amount {
		logger.Warn("callback amount mismatch",
			"expected", payment.Amount.Int64(),
			"actual", amount.Int64(),
		)
		return notCaptured("amount mismatch"), nil
	}

	if payment.IsCaptured() {
		return p.replayResult(ctx, payment, userHint)
	}

	if !strategy.Succeeded(params) {
		return p.markFailed(ctx, logger, payment, params)
	}

	// the user id recorded at checkout backs up providers whose
	// callbacks carry no user hint
	if userHint == "" {
		userHint = payment.UserID
	}

	return p.capture(ctx, logger, strategy, params, payment, userHint)
}

// replayResult resolves the wallet an already captured payment landed in
// and reports the original success.
func (p *Processor) replayResult(ctx context.Context, payment *domain.Payment, userHint string) (*ReturnResult, error) {
	result := &ReturnResult{
		Captured:  true,
		PaymentID: payment.ID,
		UserID:    payment.UserID,
	}
	if result.UserID == "" {
		result.UserID = userHint
	}

	w, err := p.store.GetWalletByPayment(ctx, payment.ID)
	if err != nil {
		if database.IsNotFound(err) {
			return result, nil
		}
		return nil, fmt.Errorf("resolving wallet: %w", err)
	}
	result.WalletID = w.ID
	return result, nil
}

// markFailed marks the payment failed and cancels its pending journals so
// nothing is left pending indefinitely.
func (p *Processor) markFailed(ctx context.Context, logger *slog.Logger, payment *domain.Payment, params Params) (*ReturnResult, error) {
	replay := false
	err := p.store.WithinTx(ctx, func(tx wallet.Store) error {
		locked, err := tx.GetPaymentForUpdate(ctx, payment.ID)
		if err != nil {
			if database.IsNotFound(err) {
				return database.ErrNotFound
			}
			return fmt.Errorf("loading payment: %w", err)
		}
		// a concurrent callback captured first; its outcome stands
		if locked.IsCaptured() {
			replay = true
			return nil
		}
		if err := locked.Fail(); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return fmt.Errorf("failing payment: %w", err)
		}
		return tx.CancelPendingJournalsByPayment(ctx, payment.ID)
	})
	if err != nil {
		if database.IsNotFound(err) {
			return notCaptured("payment not found"), nil
		}
		return nil, err
	}
	if replay {
		return p.replayResult(ctx, payment, "")
	}

	logger.Warn("gateway reported failure, payment marked failed")
	p.publish(ctx, events.EventPaymentFailed, "payment", payment.ID, events.PaymentFailedData{
		PaymentID: payment.ID,
		Provider:  string(payment.Provider),
		Amount:    payment.Amount.Int64(),
		Reason:    "gateway failure code",
	})

	return &ReturnResult{
		Captured:  false,
		PaymentID: payment.ID,
		Reason:    "gateway reported failure",
	}, nil
}

// capture settles a successful callback: it resolves the pending journal
// and destination wallet, credits the journal's implied account and posts
// everything atomically.
func (p *Processor) capture(ctx context.Context, logger *slog.Logger, strategy Strategy, params Params, payment *domain.Payment, userHint string) (*ReturnResult, error) {
	result := &ReturnResult{PaymentID: payment.ID}
	var postedJournal *domain.Journal
	var capturedPayment *domain.Payment

	err := p.store.WithinTx(ctx, func(tx wallet.Store) error {
		locked, err := tx.GetPaymentForUpdate(ctx, payment.ID)
		if err != nil {
			if database.IsNotFound(err) {
				result.Reason = "payment not found"
				return nil
			}
			return fmt.Errorf("loading payment: %w", err)
		}
		if locked.IsCaptured() {
			// lost the race to a concurrent callback
			result.Captured = true
			result.UserID = locked.UserID
			return nil
		}

		journal, err := tx.PendingJournalByPayment(ctx, payment.ID)
		if err != nil {
			if database.IsNotFound(err) {
				result.Reason = "no pending journal"
				return nil
			}
			return fmt.Errorf("loading pending journal: %w", err)
		}

		account, direction, ok := domain.GatewayEffect(journal.Type)
		if !ok {
			result.Reason = "journal type carries no gateway effect"
			return nil
		}

		w, err := p.resolveWallet(ctx, tx, payment.ID, userHint)
		if err != nil {
			return err
		}
		if w == nil {
			result.Reason = "missing user"
			return nil
		}

		if err := locked.Capture(strategy.GatewayTxnID(params), time.Now().UTC()); err != nil {
			return err
		}
		if locked.UserID == "" {
			locked.UserID = w.UserID
		}
		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return fmt.Errorf("capturing payment: %w", err)
		}

		if err := journal.Post(); err != nil {
			return err
		}
		if err := tx.UpdateJournal(ctx, journal); err != nil {
			return fmt.Errorf("posting journal: %w", err)
		}

		delta := journal.Amount
		if direction == domain.EntryDebit {
			delta = -delta
		}
		if _, err := tx.ApplyBalanceDelta(ctx, w.ID, account, delta); err != nil {
			return fmt.Errorf("applying balance: %w", err)
		}

		entry, err := domain.NewLedgerEntry(ulid.Make().String(), journal.ID, w.ID,
			account, direction, journal.Amount, "gateway "+string(strategy.Name())+" capture")
		if err != nil {
			return err
		}
		if err := tx.UpsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("writing ledger entry: %w", err)
		}

		result.Captured = true
		result.UserID = w.UserID
		result.WalletID = w.ID
		postedJournal = journal
		capturedPayment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Captured {
		logger.Warn("callback not captured", "reason", result.Reason)
		return result, nil
	}

	if capturedPayment != nil {
		logger.Info("payment captured",
			"wallet_id", result.WalletID,
			"amount", capturedPayment.Amount.Int64(),
			"gateway_txn_id", capturedPayment.GatewayTxnID,
		)
		paidAt := time.Now().UTC()
		if capturedPayment.PaidAt != nil {
			paidAt = *capturedPayment.PaidAt
		}
		p.publish(ctx, events.EventPaymentCaptured, "payment", capturedPayment.ID, events.PaymentCapturedData{
			PaymentID:    capturedPayment.ID,
			Provider:     string(capturedPayment.Provider),
			WalletID:     result.WalletID,
			Amount:       capturedPayment.Amount.Int64(),
			GatewayTxnID: capturedPayment.GatewayTxnID,
			PaidAt:       paidAt,
		})
	}
	if postedJournal != nil {
		p.publish(ctx, events.EventJournalPosted, "wallet_journal", postedJournal.ID, events.JournalPostedData{
			JournalID: postedJournal.ID,
			Type:      string(postedJournal.Type),
			WalletID:  result.WalletID,
			PaymentID: postedJournal.PaymentID,
			BookingID: postedJournal.BookingID,
			Amount:    postedJournal.Amount.Int64(),
		})
	}

	return result, nil
}

// resolveWallet finds the destination wallet for a capture: the user-id
// hint wins, then any wallet already tied to the payment through the
// ledger. A hinted user with no wallet gets a system-managed one created
// on the spot. A nil wallet with nil error means no owner could be found.
func (p *Processor) resolveWallet(ctx context.Context, tx wallet.Store, paymentID, userHint string) (*domain.Wallet, error) {
	if userHint != "" {
		w, err := tx.GetWalletByUser(ctx, userHint)
		if err == nil {
			return w, nil
		}
		if !database.IsNotFound(err) {
			return nil, fmt.Errorf("loading wallet by user: %w", err)
		}

		w, err = domain.NewWallet(ulid.Make().String(), userHint)
		if err != nil {
			return nil, err
		}
		w.IsSystem = true
		if err := tx.CreateWallet(ctx, w); err != nil {
			if database.IsUniqueViolation(err) {
				return tx.GetWalletByUser(ctx, userHint)
			}
			return nil, fmt.Errorf("creating wallet: %w", err)
		}
		p.publish(ctx, events.EventWalletCreated, "wallet", w.ID, events.WalletCreatedData{
			WalletID: w.ID,
			UserID:   w.UserID,
			IsSystem: true,
		})
		return w, nil
	}

	w, err := tx.GetWalletByPayment(ctx, paymentID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving wallet by payment: %w", err)
	}
	return w, nil
}

func (p *Processor) publish(ctx context.Context, eventType, aggregateType, aggregateID string, data interface{}) {
	if p.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, aggregateType, aggregateID, data)
	if err != nil {
		p.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

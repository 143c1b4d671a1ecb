// Package checkout implements payment checkout initiation: deriving the
// journal from the requested flow, creating the payment for gateway
// flows, and dispatching wallet-funded flows to the capture engine.
package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/database"
	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
)

// Service initiates checkouts.
type Service struct {
	store    wallet.Store
	wallets  *wallet.Service
	registry *gateway.Registry
	logger   *slog.Logger
}

// NewService creates a new checkout service.
func NewService(store wallet.Store, wallets *wallet.Service, registry *gateway.Registry, logger *slog.Logger) *Service {
	return &Service{store: store, wallets: wallets, registry: registry, logger: logger}
}

// InitiateRequest carries the checkout inputs.
type InitiateRequest struct {
	Flow      domain.Flow
	Provider  domain.Provider
	Amount    money.Amount
	BookingID string
	UserID    string
	WalletID  string
	ClientIP  string
	OrderInfo string
}

// InitiateResult reports the created payment, journal and, for gateway
// flows, the provider checkout descriptor.
type InitiateResult struct {
	PaymentID     string               `json:"payment_id,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"payment_status,omitempty"`
	JournalID     string               `json:"journal_id"`
	JournalType   domain.JournalType   `json:"journal_type"`
	JournalStatus domain.JournalStatus `json:"journal_status"`
	Checkout      *gateway.Checkout    `json:"checkout,omitempty"`
	Capture       *wallet.CaptureResult `json:"capture,omitempty"`
}

// Initiate starts a checkout for the requested flow. Gateway flows
// create an initiated payment, a pending journal and a signed provider
// checkout; the wallet-funded booking flow settles synchronously through
// the capture engine.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := money.ValidatePositive(req.Amount); err != nil {
		return nil, domain.ErrAmountInvalid
	}

	jtype, ok := domain.JournalTypeForFlow(req.Flow)
	if !ok {
		return nil, domain.ErrFlowNotSupported
	}

	if req.Flow.IsGatewayFunded() {
		return s.initiateGateway(ctx, req, jtype)
	}
	return s.initiateFromWallet(ctx, req, jtype)
}

func (s *Service) initiateGateway(ctx context.Context, req InitiateRequest, jtype domain.JournalType) (*InitiateResult, error) {
	if req.UserID == "" {
		return nil, domain.ErrUserIDRequired
	}

	strategy, ok := s.registry.Get(req.Provider)
	if !ok || !strategy.ConfigValid() {
		return nil, domain.ErrGatewayConfigMissing
	}

	payment, err := domain.NewPayment(ulid.Make().String(), req.Provider, req.Amount)
	if err != nil {
		return nil, err
	}
	payment.BookingID = req.BookingID
	payment.UserID = req.UserID
	payment.ClientIP = req.ClientIP

	journal, err := domain.NewJournal(ulid.Make().String(), jtype, req.Amount)
	if err != nil {
		return nil, err
	}
	journal.PaymentID = payment.ID
	journal.BookingID = req.BookingID

	err = s.store.WithinTx(ctx, func(tx wallet.Store) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("creating payment: %w", err)
		}
		if err := tx.CreateJournal(ctx, journal); err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	checkout, err := strategy.BuildCheckout(gateway.CheckoutRequest{
		PaymentID: payment.ID,
		Amount:    req.Amount,
		BookingID: req.BookingID,
		UserID:    req.UserID,
		ClientIP:  req.ClientIP,
		OrderInfo: req.OrderInfo,
	})
	if err != nil {
		// the payment stays initiated; no callback will ever post it
		return nil, fmt.Errorf("building %s checkout: %w", req.Provider, err)
	}

	s.logger.Info("checkout initiated",
		"flow", string(req.Flow),
		"provider", string(req.Provider),
		"payment_id", payment.ID,
		"journal_id", journal.ID,
		"amount", req.Amount.Int64(),
	)

	return &InitiateResult{
		PaymentID:     payment.ID,
		PaymentStatus: payment.Status,
		JournalID:     journal.ID,
		JournalType:   journal.Type,
		JournalStatus: journal.Status,
		Checkout:      checkout,
	}, nil
}

func (s *Service) initiateFromWallet(ctx context.Context, req InitiateRequest, jtype domain.JournalType) (*InitiateResult, error) {
	if req.UserID == "" {
		return nil, domain.ErrUserIDRequired
	}

	walletID := req.WalletID
	if walletID == "" {
		w, err := s.store.GetWalletByUser(ctx, req.UserID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, domain.ErrWalletNotFound
			}
			return nil, fmt.Errorf("loading wallet: %w", err)
		}
		walletID = w.ID
	}

	journal, err := domain.NewJournal(ulid.Make().String(), jtype, req.Amount)
	if err != nil {
		return nil, err
	}
	journal.BookingID = req.BookingID
	if err := s.store.CreateJournal(ctx, journal); err != nil {
		return nil, fmt.Errorf("creating hold journal: %w", err)
	}

	capture, err := s.wallets.CaptureFromWallet(ctx, walletID, req.UserID, journal.ID, req.Amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet-funded checkout settled",
		"flow", string(req.Flow),
		"wallet_id", walletID,
		"journal_id", journal.ID,
		"amount", req.Amount.Int64(),
	)

	return &InitiateResult{
		JournalID:     journal.ID,
		JournalType:   journal.Type,
		JournalStatus: domain.JournalStatusPosted,
		Capture:       capture,
	}, nil
}

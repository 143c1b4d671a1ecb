// Package api exposes the settlement engine over HTTP: checkout
// initiation, gateway return callbacks, wallet reads, refunds, disputes
// and the withdrawal lifecycle.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketpay/internal/checkout"
	"marketpay/internal/common/api"
	"marketpay/internal/common/middleware"
	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
	"marketpay/internal/withdrawal"
)

// Handler handles settlement HTTP requests
type Handler struct {
	checkouts   *checkout.Service
	wallets     *wallet.Service
	withdrawals *withdrawal.Service
	processor   *gateway.Processor
	registry    *gateway.Registry
}

// NewHandler creates a new settlement handler
func NewHandler(checkouts *checkout.Service, wallets *wallet.Service, withdrawals *withdrawal.Service, processor *gateway.Processor, registry *gateway.Registry) *Handler {
	return &Handler{
		checkouts:   checkouts,
		wallets:     wallets,
		withdrawals: withdrawals,
		processor:   processor,
		registry:    registry,
	}
}

// Routes returns the settlement routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/checkout", h.InitiateCheckout)

	r.Get("/gateway/{provider}/return", h.GatewayReturn)
	r.Post("/gateway/{provider}/return", h.GatewayReturn)

	r.Post("/wallets", h.EnsureWallet)
	r.Get("/wallets/{id}/balances", h.GetBalances)
	r.Get("/wallets/{id}/statement", h.GetStatement)
	r.Post("/wallets/{id}/freeze", h.DisputeFreeze)
	r.Post("/wallets/{id}/release", h.DisputeRelease)

	r.Post("/payments/{id}/refund", h.RefundPayment)

	r.Post("/withdrawals", h.CreateWithdrawal)
	r.Get("/withdrawals", h.ListWithdrawals)
	r.Get("/withdrawals/{id}", h.GetWithdrawal)
	r.Patch("/withdrawals/{id}/status", h.UpdateWithdrawalStatus)

	return r
}

// CheckoutRequest is the API request for initiating a checkout
type CheckoutRequest struct {
	Flow      string `json:"flow" validate:"required,oneof=deposit_wallet booking booking_by_wallet payout_wallet"`
	Provider  string `json:"provider" validate:"omitempty,oneof=vnpay momo zalopay"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	WalletID  string `json:"wallet_id"`
	OrderInfo string `json:"order_info"`
}

// InitiateCheckout handles POST /checkout
func (h *Handler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}

	result, err := h.checkouts.Initiate(r.Context(), checkout.InitiateRequest{
		Flow:      domain.Flow(req.Flow),
		Provider:  domain.Provider(req.Provider),
		Amount:    money.Amount(req.Amount),
		BookingID: req.BookingID,
		UserID:    userID,
		WalletID:  req.WalletID,
		ClientIP:  middleware.ClientIP(r),
		OrderInfo: req.OrderInfo,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, result)
}

// GatewayReturn handles GET/POST /gateway/{provider}/return. Gateway
// outcomes, including verification failures, always come back as a JSON
// acknowledgment rather than a transport fault.
func (h *Handler) GatewayReturn(w http.ResponseWriter, r *http.Request) {
	provider := domain.Provider(chi.URLParam(r, "provider"))
	strategy, ok := h.registry.Get(provider)
	if !ok {
		api.NotFound(w, "unknown gateway")
		return
	}

	params := gateway.Params{}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			api.BadRequest(w, "malformed form body")
			return
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	result, err := h.processor.ProcessReturn(r.Context(), strategy, params)
	if err != nil {
		api.InternalError(w, "callback processing failed")
		return
	}

	api.WriteData(w, http.StatusOK, result)
}

// EnsureWalletRequest is the API request for creating a wallet
type EnsureWalletRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// EnsureWallet handles POST /wallets
func (h *Handler) EnsureWallet(w http.ResponseWriter, r *http.Request) {
	var req EnsureWalletRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	wlt, err := h.wallets.EnsureWallet(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, wlt)
}

// GetBalances handles GET /wallets/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.wallets.Balances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, balances)
}

// GetStatement handles GET /wallets/{id}/statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	p := api.GetPaginationParams(r, 50, 100)

	journals, total, err := h.wallets.Statement(r.Context(), chi.URLParam(r, "id"), p.Limit, p.Offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WritePaginated(w, journals, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(journals)) < total,
	})
}

// DisputeRequest is the API request for dispute freezes and releases
type DisputeRequest struct {
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	DisputeRef string `json:"dispute_ref" validate:"required"`
}

// DisputeFreeze handles POST /wallets/{id}/freeze
func (h *Handler) DisputeFreeze(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	journal, err := h.wallets.DisputeFreeze(r.Context(), chi.URLParam(r, "id"), money.Amount(req.Amount), req.DisputeRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, journal)
}

// DisputeRelease handles POST /wallets/{id}/release
func (h *Handler) DisputeRelease(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	journal, err := h.wallets.DisputeRelease(r.Context(), chi.URLParam(r, "id"), money.Amount(req.Amount), req.DisputeRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, journal)
}

// RefundRequest is the API request for refunding a captured payment
type RefundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required"`
}

// RefundPayment handles POST /payments/{id}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	journal, err := h.wallets.Refund(r.Context(), chi.URLParam(r, "id"), money.Amount(req.Amount), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, journal)
}

// CreateWithdrawalRequest is the API request for opening a withdrawal
type CreateWithdrawalRequest struct {
	WalletID string `json:"wallet_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

// CreateWithdrawal handles POST /withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	request, err := h.withdrawals.Create(r.Context(), req.WalletID, req.UserID, money.Amount(req.Amount))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, request)
}

// GetWithdrawal handles GET /withdrawals/{id}
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := h.withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, request)
}

// ListWithdrawals handles GET /withdrawals?user_id=
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}
	if userID == "" {
		api.BadRequest(w, "user_id required")
		return
	}

	p := api.GetPaginationParams(r, 50, 100)
	requests, total, err := h.withdrawals.ListByUser(r.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WritePaginated(w, requests, &api.Pagination{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+len(requests)) < total,
	})
}

// UpdateWithdrawalStatusRequest is the API request for driving a
// withdrawal transition
type UpdateWithdrawalStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved completed rejected"`
	Reason string `json:"reason"`
}

// UpdateWithdrawalStatus handles PATCH /withdrawals/{id}/status
func (h *Handler) UpdateWithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateWithdrawalStatusRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	request, err := h.withdrawals.UpdateStatus(r.Context(), chi.URLParam(r, "id"),
		domain.WithdrawalStatus(req.Status), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, request)
}

// writeDomainError maps domain failures to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAmountInvalid),
		errors.Is(err, domain.ErrUserIDRequired),
		errors.Is(err, domain.ErrReasonRequired):
		api.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrFlowNotSupported):
		api.WriteError(w, http.StatusBadRequest, api.ErrCodeFlowNotSupported, err.Error())
	case errors.Is(err, domain.ErrGatewayConfigMissing):
		api.WriteError(w, http.StatusBadRequest, api.ErrCodeGatewayConfig, err.Error())
	case errors.Is(err, domain.ErrUserMismatch):
		api.Forbidden(w, err.Error())
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrJournalNotFound),
		errors.Is(err, domain.ErrWithdrawalNotFound),
		errors.Is(err, domain.ErrHoldMissing),
		errors.Is(err, domain.ErrAvailableMissing):
		api.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		api.WriteError(w, http.StatusConflict, api.ErrCodeInsufficientFunds, err.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		api.WriteError(w, http.StatusConflict, api.ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrRefundExceedsCapture):
		api.Conflict(w, err.Error())
	default:
		api.InternalError(w, "operation failed")
	}
}

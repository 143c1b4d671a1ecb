package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/checkout"
	"marketpay/internal/common/money"
	"marketpay/internal/gateway"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
	"marketpay/internal/wallet/wallettest"
	"marketpay/internal/withdrawal"
)

// echoStrategy answers callbacks from plain parameters so handler tests
// can drive the full return path without signing anything real. It
// registers under the vnpay name to satisfy the provider whitelist.
type echoStrategy struct{}

func (echoStrategy) Name() domain.Provider { return domain.ProviderVNPay }

func (echoStrategy) ConfigValid() bool { return true }

func (echoStrategy) VerifySignature(p gateway.Params) bool { return p.Get("sig") == "valid" }

func (echoStrategy) UserHint(p gateway.Params) string { return p.Get("uid") }

func (echoStrategy) PaymentID(p gateway.Params) (string, bool) {
	id := p.Get("pid")
	return id, id != ""
}

func (echoStrategy) Amount(p gateway.Params) (money.Amount, bool) {
	raw, err := strconv.ParseInt(p.Get("amount"), 10, 64)
	if err != nil {
		return 0, false
	}
	return money.Amount(raw), true
}

func (echoStrategy) Succeeded(p gateway.Params) bool { return p.Get("ok") == "1" }

func (echoStrategy) GatewayTxnID(p gateway.Params) string { return p.Get("txn") }

func (echoStrategy) BuildCheckout(req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	return &gateway.Checkout{Provider: domain.ProviderVNPay, RedirectURL: "https://echo/pay/" + req.PaymentID}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *wallettest.Store) {
	t.Helper()
	store := wallettest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := gateway.NewRegistry(echoStrategy{})
	wallets := wallet.NewService(store, nil, logger)
	checkouts := checkout.NewService(store, wallets, registry, logger)
	withdrawals := withdrawal.NewService(store, nil, logger)
	processor := gateway.NewProcessor(store, nil, logger)

	h := NewHandler(checkouts, wallets, withdrawals, processor, registry)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func TestEnsureWalletEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/wallets", `{"user_id":"u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var created domain.Wallet
	decodeData(t, resp, &created)
	if created.UserID != "u1" || created.ID == "" {
		t.Errorf("wallet = %+v", created)
	}

	// replays return the same wallet
	resp = postJSON(t, srv, "/wallets", `{"user_id":"u1"}`)
	var again domain.Wallet
	decodeData(t, resp, &again)
	if again.ID != created.ID {
		t.Error("replay created a second wallet")
	}

	resp = postJSON(t, srv, "/wallets", `{}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("missing user_id: status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCheckoutEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv, "/checkout", `{"flow":"deposit_wallet","provider":"vnpay","amount":50000,"user_id":"u1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var result checkout.InitiateResult
	decodeData(t, resp, &result)
	if result.PaymentID == "" || result.Checkout == nil {
		t.Fatalf("result = %+v", result)
	}
	if _, err := store.GetPayment(context.Background(), result.PaymentID); err != nil {
		t.Errorf("payment not persisted: %v", err)
	}

	resp = postJSON(t, srv, "/checkout", `{"flow":"teleport","amount":50000}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad flow: status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv, "/checkout", `{"flow":"payout_wallet","amount":50000,"user_id":"u1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reserved flow: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGatewayReturnEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	resp := postJSON(t, srv, "/checkout", `{"flow":"deposit_wallet","provider":"vnpay","amount":50000,"user_id":"u1"}`)
	var initiated checkout.InitiateResult
	decodeData(t, resp, &initiated)

	query := "?sig=valid&ok=1&uid=u1&amount=50000&txn=GW1&pid=" + initiated.PaymentID
	getResp, err := http.Get(srv.URL + "/gateway/vnpay/return" + query)
	if err != nil {
		t.Fatalf("GET return: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}
	var result gateway.ReturnResult
	decodeData(t, getResp, &result)
	if !result.Captured {
		t.Fatalf("not captured: %s", result.Reason)
	}

	w, err := store.GetWalletByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetWalletByUser: %v", err)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available = %d, want 50000", got)
	}

	// forged callbacks are acknowledged but not captured
	forged, err := http.Get(srv.URL + "/gateway/vnpay/return?sig=bad&pid=" + initiated.PaymentID)
	if err != nil {
		t.Fatalf("GET forged: %v", err)
	}
	if forged.StatusCode != http.StatusOK {
		t.Errorf("forged status = %d, want 200", forged.StatusCode)
	}
	var rejected gateway.ReturnResult
	decodeData(t, forged, &rejected)
	if rejected.Captured {
		t.Error("forged callback captured")
	}

	unknown, err := http.Get(srv.URL + "/gateway/stripe/return")
	if err != nil {
		t.Fatalf("GET unknown: %v", err)
	}
	unknown.Body.Close()
	if unknown.StatusCode != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", unknown.StatusCode)
	}
}

func TestWithdrawalEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	w, _ := domain.NewWallet(ulid.Make().String(), "u1")
	store.CreateWallet(ctx, w)
	store.ApplyBalanceDelta(ctx, w.ID, domain.AccountAvailable, 20000)

	resp := postJSON(t, srv, "/withdrawals",
		`{"wallet_id":"`+w.ID+`","user_id":"u1","amount":20000}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created domain.WithdrawalRequest
	decodeData(t, resp, &created)

	// over-withdrawing conflicts
	resp = postJSON(t, srv, "/withdrawals",
		`{"wallet_id":"`+w.ID+`","user_id":"u1","amount":1}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("insufficient funds status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/withdrawals/"+created.ID+"/status",
		strings.NewReader(`{"status":"rejected","reason":"fraud check"}`))
	req.Header.Set("Content-Type", "application/json")
	patchResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH status: %v", err)
	}
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", patchResp.StatusCode)
	}
	var rejected domain.WithdrawalRequest
	decodeData(t, patchResp, &rejected)
	if rejected.Status != domain.WithdrawalRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 20000 {
		t.Errorf("available = %d after rejection, want 20000", got)
	}

	listResp, err := http.Get(srv.URL + "/withdrawals?user_id=u1")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var list []domain.WithdrawalRequest
	decodeData(t, listResp, &list)
	if len(list) != 1 {
		t.Errorf("list = %d items, want 1", len(list))
	}

	missing, err := http.Get(srv.URL + "/withdrawals/nope")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing withdrawal status = %d, want 404", missing.StatusCode)
	}
}

func TestBalancesAndStatementEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	w, _ := domain.NewWallet(ulid.Make().String(), "u1")
	store.CreateWallet(ctx, w)
	store.ApplyBalanceDelta(ctx, w.ID, domain.AccountAvailable, 75000)

	resp, err := http.Get(srv.URL + "/wallets/" + w.ID + "/balances")
	if err != nil {
		t.Fatalf("GET balances: %v", err)
	}
	var balances []domain.Balance
	decodeData(t, resp, &balances)
	if len(balances) != 1 || balances[0].Amount != 75000 {
		t.Errorf("balances = %+v", balances)
	}

	freeze := postJSON(t, srv, "/wallets/"+w.ID+"/freeze", `{"amount":25000,"dispute_ref":"case-1"}`)
	if freeze.StatusCode != http.StatusCreated {
		t.Fatalf("freeze status = %d, want 201", freeze.StatusCode)
	}
	freeze.Body.Close()
	if got := store.BalanceAmount(w.ID, domain.AccountFrozen); got != 25000 {
		t.Errorf("frozen = %d, want 25000", got)
	}

	release := postJSON(t, srv, "/wallets/"+w.ID+"/release", `{"amount":25000,"dispute_ref":"case-1"}`)
	release.Body.Close()
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 75000 {
		t.Errorf("available = %d after release, want 75000", got)
	}

	stmt, err := http.Get(srv.URL + "/wallets/" + w.ID + "/statement?limit=1")
	if err != nil {
		t.Fatalf("GET statement: %v", err)
	}
	defer stmt.Body.Close()
	var paged struct {
		Data       []domain.Journal `json:"data"`
		Pagination struct {
			Total   int64 `json:"total"`
			HasMore bool  `json:"has_more"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(stmt.Body).Decode(&paged); err != nil {
		t.Fatalf("decode statement: %v", err)
	}
	if len(paged.Data) != 1 || paged.Pagination.Total != 2 || !paged.Pagination.HasMore {
		t.Errorf("statement page = %+v", paged)
	}
}

func TestRefundEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	// capture a deposit through the gateway return path first
	resp := postJSON(t, srv, "/checkout", `{"flow":"deposit_wallet","provider":"vnpay","amount":80000,"user_id":"u1"}`)
	var initiated checkout.InitiateResult
	decodeData(t, resp, &initiated)
	cb, err := http.Get(srv.URL + "/gateway/vnpay/return?sig=valid&ok=1&uid=u1&amount=80000&txn=GW1&pid=" + initiated.PaymentID)
	if err != nil {
		t.Fatalf("GET return: %v", err)
	}
	cb.Body.Close()

	refund := postJSON(t, srv, "/payments/"+initiated.PaymentID+"/refund", `{"amount":30000,"reason":"booking cancelled"}`)
	if refund.StatusCode != http.StatusCreated {
		t.Fatalf("refund status = %d, want 201", refund.StatusCode)
	}
	refund.Body.Close()

	w, _ := store.GetWalletByUser(ctx, "u1")
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available = %d after refund, want 50000", got)
	}

	over := postJSON(t, srv, "/payments/"+initiated.PaymentID+"/refund", `{"amount":60000,"reason":"too much"}`)
	if over.StatusCode != http.StatusConflict {
		t.Errorf("over-refund status = %d, want 409", over.StatusCode)
	}
	over.Body.Close()
}

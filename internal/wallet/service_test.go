package wallet_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/money"
	"marketpay/internal/wallet"
	"marketpay/internal/wallet/domain"
	"marketpay/internal/wallet/wallettest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*wallet.Service, *wallettest.Store) {
	t.Helper()
	store := wallettest.New()
	return wallet.NewService(store, nil, discardLogger()), store
}

func seedWallet(t *testing.T, store *wallettest.Store, userID string, available int64) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := domain.NewWallet(ulid.Make().String(), userID)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if err := store.CreateWallet(ctx, w); err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if available > 0 {
		if _, err := store.ApplyBalanceDelta(ctx, w.ID, domain.AccountAvailable, money.Amount(available)); err != nil {
			t.Fatalf("ApplyBalanceDelta: %v", err)
		}
	}
	return w
}

func seedHold(t *testing.T, store *wallettest.Store, amount int64) *domain.Journal {
	t.Helper()
	j, err := domain.NewJournal(ulid.Make().String(), domain.JournalHold, money.Amount(amount))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	j.BookingID = "bk-1"
	if err := store.CreateJournal(context.Background(), j); err != nil {
		t.Fatalf("CreateJournal: %v", err)
	}
	return j
}

func TestCaptureFromWallet(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 150000)
	hold := seedHold(t, store, 100000)

	res, err := svc.CaptureFromWallet(ctx, w.ID, "u1", hold.ID, 100000)
	if err != nil {
		t.Fatalf("CaptureFromWallet: %v", err)
	}
	if res.NoOp {
		t.Fatal("first capture reported as no-op")
	}
	if res.Available != 50000 || res.Escrow != 100000 {
		t.Errorf("balances = %d/%d, want 50000/100000", res.Available, res.Escrow)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available = %d, want 50000", got)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountEscrow); got != 100000 {
		t.Errorf("escrow = %d, want 100000", got)
	}

	posted, err := store.GetJournal(ctx, hold.ID)
	if err != nil {
		t.Fatalf("GetJournal: %v", err)
	}
	if !posted.IsPosted() {
		t.Error("hold journal not posted")
	}
	payout, err := store.GetJournal(ctx, res.PayoutJournalID)
	if err != nil {
		t.Fatalf("GetJournal(payout): %v", err)
	}
	if !payout.IsPosted() || payout.Type != domain.JournalPayout {
		t.Errorf("payout journal = %s/%s, want posted payout", payout.Status, payout.Type)
	}
	if payout.BookingID != hold.BookingID {
		t.Errorf("payout BookingID = %q, want %q", payout.BookingID, hold.BookingID)
	}

	holdEntries, _ := store.EntriesByJournal(ctx, hold.ID)
	if len(holdEntries) != 1 || holdEntries[0].Direction != domain.EntryDebit || holdEntries[0].Account != domain.AccountAvailable {
		t.Errorf("hold entries = %+v, want one available debit", holdEntries)
	}
	payoutEntries, _ := store.EntriesByJournal(ctx, payout.ID)
	if len(payoutEntries) != 1 || payoutEntries[0].Direction != domain.EntryCredit || payoutEntries[0].Account != domain.AccountEscrow {
		t.Errorf("payout entries = %+v, want one escrow credit", payoutEntries)
	}
}

func TestCaptureFromWalletIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 150000)
	hold := seedHold(t, store, 100000)

	if _, err := svc.CaptureFromWallet(ctx, w.ID, "u1", hold.ID, 100000); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	res, err := svc.CaptureFromWallet(ctx, w.ID, "u1", hold.ID, 100000)
	if err != nil {
		t.Fatalf("replay capture: %v", err)
	}
	if !res.NoOp {
		t.Error("replay not reported as no-op")
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available after replay = %d, want 50000", got)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountEscrow); got != 100000 {
		t.Errorf("escrow after replay = %d, want 100000", got)
	}
	if n := store.JournalCount(domain.JournalPayout); n != 1 {
		t.Errorf("payout journals = %d, want 1", n)
	}
}

func TestCaptureFromWalletConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 150000)
	hold := seedHold(t, store, 100000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CaptureFromWallet(ctx, w.ID, "u1", hold.ID, 100000)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available = %d, want 50000 after concurrent captures", got)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountEscrow); got != 100000 {
		t.Errorf("escrow = %d, want 100000 after concurrent captures", got)
	}
	if n := store.JournalCount(domain.JournalPayout); n != 1 {
		t.Errorf("payout journals = %d, want 1", n)
	}
}

func TestCaptureFromWalletFailures(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 50000)
	hold := seedHold(t, store, 100000)

	tests := []struct {
		name    string
		wallet  string
		user    string
		journal string
		amount  int64
		wantErr error
	}{
		{"zero amount", w.ID, "u1", hold.ID, 0, domain.ErrAmountInvalid},
		{"negative amount", w.ID, "u1", hold.ID, -5, domain.ErrAmountInvalid},
		{"unknown wallet", "nope", "u1", hold.ID, 100000, domain.ErrWalletNotFound},
		{"foreign wallet", w.ID, "u2", hold.ID, 100000, domain.ErrUserMismatch},
		{"missing hold", w.ID, "u1", "nope", 100000, domain.ErrHoldMissing},
		{"insufficient funds", w.ID, "u1", hold.ID, 100000, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CaptureFromWallet(ctx, tt.wallet, tt.user, tt.journal, money.Amount(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
				t.Errorf("available mutated to %d", got)
			}
			if got := store.BalanceAmount(w.ID, domain.AccountEscrow); got != 0 {
				t.Errorf("escrow mutated to %d", got)
			}
		})
	}

	j, _ := store.GetJournal(ctx, hold.ID)
	if j.Status != domain.JournalStatusPending {
		t.Errorf("hold status = %s after failed captures, want pending", j.Status)
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 0)

	// a captured deposit payment with its posted journal and entry
	payment, _ := domain.NewPayment("pay-1", domain.ProviderVNPay, 80000)
	payment.UserID = "u1"
	payment.Capture("VNP1", time.Now().UTC())
	if err := store.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	dep, _ := domain.NewJournal(ulid.Make().String(), domain.JournalDeposit, 80000)
	dep.PaymentID = payment.ID
	dep.Post()
	store.CreateJournal(ctx, dep)
	entry, _ := domain.NewLedgerEntry(ulid.Make().String(), dep.ID, w.ID, domain.AccountAvailable, domain.EntryCredit, 80000, "gateway vnpay capture")
	store.UpsertLedgerEntry(ctx, entry)
	store.ApplyBalanceDelta(ctx, w.ID, domain.AccountAvailable, 80000)

	refund, err := svc.Refund(ctx, payment.ID, 30000, "booking cancelled")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.Type != domain.JournalRefund || !refund.IsPosted() {
		t.Errorf("refund journal = %s/%s, want posted refund", refund.Status, refund.Type)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available = %d, want 50000", got)
	}
	p, _ := store.GetPayment(ctx, payment.ID)
	if p.RefundAmount != 30000 {
		t.Errorf("RefundAmount = %d, want 30000", p.RefundAmount)
	}

	if _, err := svc.Refund(ctx, payment.ID, 60000, "too much"); !errors.Is(err, domain.ErrRefundExceedsCapture) {
		t.Errorf("over-refund error = %v, want ErrRefundExceedsCapture", err)
	}
	if got := store.BalanceAmount(w.ID, domain.AccountAvailable); got != 50000 {
		t.Errorf("available mutated to %d by rejected refund", got)
	}
}

func TestDisputeFreezeAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 40000)

	j, err := svc.DisputeFreeze(ctx, w.ID, 25000, "case-77")
	if err != nil {
		t.Fatalf("DisputeFreeze: %v", err)
	}
	if j.Type != domain.JournalDisputeFreeze || !j.IsPosted() {
		t.Errorf("freeze journal = %s/%s", j.Status, j.Type)
	}
	if a, f := store.BalanceAmount(w.ID, domain.AccountAvailable), store.BalanceAmount(w.ID, domain.AccountFrozen); a != 15000 || f != 25000 {
		t.Errorf("balances = %d/%d, want 15000/25000", a, f)
	}
	entries, _ := store.EntriesByJournal(ctx, j.ID)
	if len(entries) != 2 {
		t.Fatalf("freeze entries = %d, want 2", len(entries))
	}

	if _, err := svc.DisputeRelease(ctx, w.ID, 25000, "case-77"); err != nil {
		t.Fatalf("DisputeRelease: %v", err)
	}
	if a, f := store.BalanceAmount(w.ID, domain.AccountAvailable), store.BalanceAmount(w.ID, domain.AccountFrozen); a != 40000 || f != 0 {
		t.Errorf("balances after release = %d/%d, want 40000/0", a, f)
	}

	if _, err := svc.DisputeFreeze(ctx, w.ID, 90000, "case-78"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("oversized freeze error = %v, want ErrInsufficientFunds", err)
	}
}

func TestEnsureWallet(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	w1, err := svc.EnsureWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}
	w2, err := svc.EnsureWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("EnsureWallet replay: %v", err)
	}
	if w1.ID != w2.ID {
		t.Errorf("EnsureWallet created a second wallet for the same user")
	}
	got, err := store.GetWalletByUser(ctx, "u1")
	if err != nil || got.ID != w1.ID {
		t.Errorf("GetWalletByUser = %v, %v", got, err)
	}
}

func TestStatementPagination(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 1000000)

	for i := 0; i < 3; i++ {
		if _, err := svc.DisputeFreeze(ctx, w.ID, 1000, "case"); err != nil {
			t.Fatalf("DisputeFreeze %d: %v", i, err)
		}
		if _, err := svc.DisputeRelease(ctx, w.ID, 1000, "case"); err != nil {
			t.Fatalf("DisputeRelease %d: %v", i, err)
		}
	}

	journals, total, err := svc.Statement(ctx, w.ID, 4, 0)
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
	if len(journals) != 4 {
		t.Errorf("page size = %d, want 4", len(journals))
	}
	for _, j := range journals {
		if len(j.Entries) == 0 {
			t.Errorf("journal %s returned without entries", j.ID)
		}
	}

	rest, _, err := svc.Statement(ctx, w.ID, 4, 4)
	if err != nil {
		t.Fatalf("Statement offset: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("second page = %d journals, want 2", len(rest))
	}
}

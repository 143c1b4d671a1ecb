package withdrawal_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/oklog/ulid/v2"

	"marketpay/internal/common/money"
	"marketpay/internal/wallet/domain"
	"marketpay/internal/wallet/wallettest"
	"marketpay/internal/withdrawal"
)

func newService(t *testing.T) (*withdrawal.Service, *wallettest.Store) {
	t.Helper()
	store := wallettest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return withdrawal.NewService(store, nil, logger), store
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

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 20000)

	req, err := svc.Create(ctx, w.ID, "u1", 20000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Status != domain.WithdrawalPending {
		t.Errorf("status = %s, want pending", req.Status)
	}
	if a, f := store.BalanceAmount(w.ID, domain.AccountAvailable), store.BalanceAmount(w.ID, domain.AccountFrozen); a != 0 || f != 20000 {
		t.Errorf("balances = %d/%d, want 0/20000", a, f)
	}

	hold, err := store.GetJournal(ctx, req.HoldJournalID)
	if err != nil {
		t.Fatalf("GetJournal(hold): %v", err)
	}
	if hold.Type != domain.JournalWithdrawalHold || !hold.IsPosted() {
		t.Errorf("hold journal = %s/%s, want posted withdrawal_hold", hold.Status, hold.Type)
	}
	entries, _ := store.EntriesByJournal(ctx, hold.ID)
	if len(entries) != 1 || entries[0].Direction != domain.EntryDebit || entries[0].Account != domain.AccountAvailable {
		t.Errorf("hold entries = %+v, want one available debit", entries)
	}
}

func TestCreateFailures(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 10000)

	tests := []struct {
		name    string
		wallet  string
		user    string
		amount  int64
		wantErr error
	}{
		{"zero amount", w.ID, "u1", 0, domain.ErrAmountInvalid},
		{"unknown wallet", "nope", "u1", 5000, domain.ErrWalletNotFound},
		{"foreign wallet", w.ID, "u2", 5000, domain.ErrUserMismatch},
		{"insufficient funds", w.ID, "u1", 10001, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.wallet, tt.user, money.Amount(tt.amount)); !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if a, f := store.BalanceAmount(w.ID, domain.AccountAvailable), store.BalanceAmount(w.ID, domain.AccountFrozen); a != 10000 || f != 0 {
				t.Errorf("balances mutated to %d/%d", a, f)
			}
		})
	}
}

func TestRejectReturnsFunds(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 20000)

	req, err := svc.Create(ctx, w.ID, "u1", 20000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rejected, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalRejected, "fraud check")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.WithdrawalRejected || rejected.RejectReason != "fraud check" {
		t.Errorf("request = %s/%q", rejected.Status, rejected.RejectReason)
	}
	if a, f := store.BalanceAmount(w.ID, domain.AccountAvailable), store.BalanceAmount(w.ID, domain.AccountFrozen); a != 20000 || f != 0 {
		t.Errorf("balances = %d/%d, want funds back at 20000/0", a, f)
	}
	if n := store.JournalCount(domain.JournalRelease); n != 1 {
		t.Errorf("release journals = %d, want 1", n)
	}

	// a second reject only updates the reason
	updated, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalRejected, "manual review")
	if err != nil {
		t.Fatalf("reason update: %v", err)
	}
	if updated.RejectReason != "manual review" {
		t.Errorf("RejectReason = %q, want manual review", updated.RejectReason)
	}
	if a := store.BalanceAmount(w.ID, domain.AccountAvailable); a != 20000 {
		t.Errorf("available = %d after reason update, want 20000", a)
	}
	if n := store.JournalCount(domain.JournalRelease); n != 1 {
		t.Errorf("release journals = %d after reason update, want 1", n)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 20000)
	req, _ := svc.Create(ctx, w.ID, "u1", 20000)

	if _, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalRejected, ""); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("error = %v, want ErrReasonRequired", err)
	}
	if f := store.BalanceAmount(w.ID, domain.AccountFrozen); f != 20000 {
		t.Errorf("frozen = %d, want untouched 20000", f)
	}
}

func TestApproveThenComplete(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 30000)
	req, _ := svc.Create(ctx, w.ID, "u1", 30000)

	approved, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalApproved, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.WithdrawalApproved || approved.ApprovedAt == nil {
		t.Errorf("request = %s, ApprovedAt = %v", approved.Status, approved.ApprovedAt)
	}
	// approval moves no money
	if f := store.BalanceAmount(w.ID, domain.AccountFrozen); f != 30000 {
		t.Errorf("frozen = %d after approve, want 30000", f)
	}

	completed, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalCompleted, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.WithdrawalCompleted || completed.PayoutJournalID == "" {
		t.Errorf("request = %s, PayoutJournalID = %q", completed.Status, completed.PayoutJournalID)
	}
	if f := store.BalanceAmount(w.ID, domain.AccountFrozen); f != 0 {
		t.Errorf("frozen = %d after complete, want 0", f)
	}
	payout, err := store.GetJournal(ctx, completed.PayoutJournalID)
	if err != nil {
		t.Fatalf("GetJournal(payout): %v", err)
	}
	if payout.Type != domain.JournalPayout || !payout.IsPosted() {
		t.Errorf("payout journal = %s/%s", payout.Status, payout.Type)
	}

	// completed is terminal: replaying the completion is a no-op
	again, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalCompleted, "")
	if err != nil {
		t.Fatalf("complete replay: %v", err)
	}
	if again.PayoutJournalID != completed.PayoutJournalID {
		t.Error("completion replay opened a second payout journal")
	}
	if f := store.BalanceAmount(w.ID, domain.AccountFrozen); f != 0 {
		t.Errorf("frozen = %d after replay, want 0", f)
	}
}

func TestCompleteDirectlyFromPending(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 15000)
	req, _ := svc.Create(ctx, w.ID, "u1", 15000)

	completed, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalCompleted, "")
	if err != nil {
		t.Fatalf("complete from pending: %v", err)
	}
	if completed.Status != domain.WithdrawalCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}
	if f := store.BalanceAmount(w.ID, domain.AccountFrozen); f != 0 {
		t.Errorf("frozen = %d, want 0", f)
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 20000)
	req, _ := svc.Create(ctx, w.ID, "u1", 20000)

	if _, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalPending, ""); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("transition to pending: error = %v, want ErrInvalidStatusTransition", err)
	}

	if _, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalRejected, "too late"); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("reject after complete: error = %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := svc.UpdateStatus(ctx, req.ID, domain.WithdrawalApproved, ""); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("approve after complete: error = %v, want ErrInvalidStatusTransition", err)
	}

	if _, err := svc.UpdateStatus(ctx, "missing", domain.WithdrawalApproved, ""); !errors.Is(err, domain.ErrWithdrawalNotFound) {
		t.Errorf("unknown withdrawal: error = %v, want ErrWithdrawalNotFound", err)
	}
}

func TestGetAndListByUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	w := seedWallet(t, store, "u1", 30000)

	first, _ := svc.Create(ctx, w.ID, "u1", 10000)
	second, _ := svc.Create(ctx, w.ID, "u1", 5000)

	got, err := svc.Get(ctx, first.ID)
	if err != nil || got.ID != first.ID {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, domain.ErrWithdrawalNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrWithdrawalNotFound", err)
	}

	list, total, err := svc.ListByUser(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("list = %d items, total %d, want 2/2", len(list), total)
	}
	if list[0].ID != second.ID {
		t.Errorf("list[0] = %s, want newest first (%s)", list[0].ID, second.ID)
	}
}

package domain

import (
	"testing"
	"time"
)

func TestPaymentCapture(t *testing.T) {
	p, err := NewPayment("p1", ProviderVNPay, 50000)
	if err != nil {
		t.Fatalf("NewPayment() error = %v", err)
	}
	if p.Status != PaymentStatusInitiated {
		t.Fatalf("Status = %q, want %q", p.Status, PaymentStatusInitiated)
	}

	paidAt := time.Now().UTC()
	if err := p.Capture("VNP123", paidAt); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !p.IsCaptured() {
		t.Error("IsCaptured() = false after Capture")
	}
	if p.GatewayTxnID != "VNP123" {
		t.Errorf("GatewayTxnID = %q, want VNP123", p.GatewayTxnID)
	}
	if p.PaidAt == nil || !p.PaidAt.Equal(paidAt) {
		t.Errorf("PaidAt = %v, want %v", p.PaidAt, paidAt)
	}

	// re-capture is tolerated, fail after capture is not
	if err := p.Capture("VNP123", paidAt); err != nil {
		t.Errorf("re-Capture() error = %v", err)
	}
	if err := p.Fail(); err == nil {
		t.Error("failing a captured payment should be rejected")
	}
}

func TestPaymentFail(t *testing.T) {
	p, _ := NewPayment("p1", ProviderMoMo, 50000)
	if err := p.Fail(); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if p.Status != PaymentStatusFailed {
		t.Errorf("Status = %q, want %q", p.Status, PaymentStatusFailed)
	}
	if err := p.Capture("M1", time.Now()); err == nil {
		t.Error("capturing a failed payment should be rejected")
	}
}

func TestPaymentRecordRefund(t *testing.T) {
	p, _ := NewPayment("p1", ProviderZaloPay, 100000)
	if err := p.RecordRefund(30000); err == nil {
		t.Error("refunding an initiated payment should fail")
	}

	p.Capture("ZP1", time.Now())
	if err := p.RecordRefund(30000); err != nil {
		t.Fatalf("RecordRefund() error = %v", err)
	}
	if err := p.RecordRefund(70000); err != nil {
		t.Fatalf("RecordRefund to full amount: error = %v", err)
	}
	if p.RefundAmount != 100000 {
		t.Errorf("RefundAmount = %d, want 100000", p.RefundAmount)
	}
	if err := p.RecordRefund(1); err != ErrRefundExceedsCapture {
		t.Errorf("over-refund: error = %v, want ErrRefundExceedsCapture", err)
	}
	if err := p.RecordRefund(0); err != ErrAmountInvalid {
		t.Errorf("zero refund: error = %v, want ErrAmountInvalid", err)
	}
}

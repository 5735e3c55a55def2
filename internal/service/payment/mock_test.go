package payment

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

func TestMockGateway(t *testing.T) {
	mock := NewMockGateway()
	if mock == nil {
		t.Fatal("expected non-nil mock")
	}

	inv, err := mock.GetInvoice("inv-1")
	if err != nil {
		t.Fatalf("unexpected invoice error: %v", err)
	}
	if inv.ID != "inv-1" {
		t.Fatalf("unexpected invoice id: %s", inv.ID)
	}

	mock.Invoice = domain.Invoice{ID: "inv-preset", AmountMinor: 1900}
	inv, err = mock.GetInvoice("inv-2")
	if err != nil {
		t.Fatalf("unexpected invoice error: %v", err)
	}
	if inv.ID != "inv-preset" || inv.AmountMinor != 1900 {
		t.Fatalf("preset invoice not returned: %+v", inv)
	}

	if err := mock.Refund("po-1", 1900, "supplier_out_of_stock"); err != nil {
		t.Fatalf("unexpected refund error: %v", err)
	}
	if len(mock.Refunds) != 1 || mock.Refunds[0].AmountMinor != 1900 {
		t.Fatalf("refund call not recorded: %+v", mock.Refunds)
	}

	mock.InvoiceErr = domain.ErrGatewayTemporary
	if _, err := mock.GetInvoice("inv-3"); !errors.Is(err, domain.ErrGatewayTemporary) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	mock.RefundErr = errors.New("refund failed")
	if err := mock.Refund("po-2", 100, "test"); err == nil {
		t.Fatal("expected refund error")
	}

	if mock.InvoiceCalls != 3 || mock.RefundCalls != 2 {
		t.Fatalf("unexpected call counters: invoice=%d refund=%d", mock.InvoiceCalls, mock.RefundCalls)
	}
}

package supplier

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

func TestMockService(t *testing.T) {
	mock := NewMockService()
	if mock == nil {
		t.Fatal("expected non-nil mock")
	}

	products, err := mock.QueryProducts(domain.CatalogQuery{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected limit to apply, got %d products", len(products))
	}

	products, err = mock.QueryProducts(domain.CatalogQuery{MaxCostMinor: 1300})
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	for _, p := range products {
		if p.CostMinor+p.ShippingMinor > 1300 {
			t.Fatalf("product %s exceeds cost cap", p.ProductID)
		}
	}

	order, err := mock.PlaceOrder(domain.SupplierOrderRequest{LotID: "lot-1", ProductID: "mock-prod-1"})
	if err != nil {
		t.Fatalf("unexpected place error: %v", err)
	}
	if order.OrderID != "mock-order-1" {
		t.Fatalf("unexpected order id: %s", order.OrderID)
	}
	if len(mock.Orders) != 1 || mock.Orders[0].LotID != "lot-1" {
		t.Fatalf("order request not recorded: %+v", mock.Orders)
	}

	mock.PlaceErr = domain.ErrSupplierOutOfStock
	if _, err := mock.PlaceOrder(domain.SupplierOrderRequest{LotID: "lot-2"}); !errors.Is(err, domain.ErrSupplierOutOfStock) {
		t.Fatalf("expected out-of-stock error, got %v", err)
	}

	if mock.QueryCalls != 2 || mock.PlaceCalls != 2 {
		t.Fatalf("unexpected call counters: query=%d place=%d", mock.QueryCalls, mock.PlaceCalls)
	}
}

// Package supplier содержит адаптеры fulfillment-API поставщика.
package supplier

import (
	"fmt"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// MockService — конфигурируемая заглушка SupplierService для тестов и
// локального запуска без реального поставщика.
type MockService struct {
	Products []domain.CatalogProduct
	QueryErr error
	PlaceErr error

	QueryCalls int
	PlaceCalls int
	Orders     []domain.SupplierOrderRequest
}

// NewMockService возвращает mock с небольшим детерминированным каталогом.
func NewMockService() *MockService {
	return &MockService{
		Products: []domain.CatalogProduct{
			{
				ProductID:     "mock-prod-1",
				VariantID:     "mock-var-1",
				Name:          "Wireless Earbuds",
				CostMinor:     1200,
				ShippingMinor: 300,
				RetailMinor:   2900,
				Carrier:       "CJPacket",
				OriginCountry: "CN",
			},
			{
				ProductID:     "mock-prod-2",
				VariantID:     "mock-var-2",
				Name:          "LED Desk Lamp",
				CostMinor:     800,
				ShippingMinor: 450,
				RetailMinor:   2400,
				Carrier:       "CJPacket",
				OriginCountry: "CN",
			},
		},
	}
}

// QueryProducts возвращает настроенный каталог с учётом лимита запроса.
func (m *MockService) QueryProducts(query domain.CatalogQuery) ([]domain.CatalogProduct, error) {
	m.QueryCalls++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	result := make([]domain.CatalogProduct, 0, len(m.Products))
	for _, p := range m.Products {
		if query.MaxCostMinor > 0 && p.CostMinor+p.ShippingMinor > query.MaxCostMinor {
			continue
		}
		result = append(result, p)
		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}
	return result, nil
}

// PlaceOrder фиксирует запрос и возвращает заказ с детерминированным ID.
func (m *MockService) PlaceOrder(req domain.SupplierOrderRequest) (domain.SupplierOrder, error) {
	m.PlaceCalls++
	if m.PlaceErr != nil {
		return domain.SupplierOrder{}, m.PlaceErr
	}

	m.Orders = append(m.Orders, req)
	return domain.SupplierOrder{
		OrderID:     fmt.Sprintf("mock-order-%d", m.PlaceCalls),
		OrderNumber: fmt.Sprintf("MO-%04d", m.PlaceCalls),
		Status:      "CREATED",
	}, nil
}

var _ domain.SupplierService = (*MockService)(nil)

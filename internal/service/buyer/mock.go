// Package buyer содержит справочник профильных адресов покупателей.
package buyer

import "github.com/vladislavdragonenkov/dropship/internal/domain"

// MockDirectory — конфигурируемая заглушка BuyerDirectory для тестов и
// локального запуска.
type MockDirectory struct {
	Addresses map[string]domain.ShippingAddress
	Err       error

	Calls int
}

// NewMockDirectory возвращает пустой справочник: для любого покупателя
// будет ErrAddressNotFound.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{Addresses: make(map[string]domain.ShippingAddress)}
}

// ShippingAddress отдаёт сохранённый адрес или ErrAddressNotFound.
func (m *MockDirectory) ShippingAddress(buyerID string) (domain.ShippingAddress, error) {
	m.Calls++
	if m.Err != nil {
		return domain.ShippingAddress{}, m.Err
	}

	addr, ok := m.Addresses[buyerID]
	if !ok {
		return domain.ShippingAddress{}, domain.ErrAddressNotFound
	}
	return addr, nil
}

var _ domain.BuyerDirectory = (*MockDirectory)(nil)

// Package auction содержит адаптеры аукционной площадки.
package auction

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// MockPlatform — конфигурируемая заглушка AuctionPlatform для тестов и
// локального запуска без реальной площадки.
type MockPlatform struct {
	CreateErr  error
	PublishErr error
	QueryErr   error
	Closed     []domain.ClosedSale

	CreateCalls  int
	PublishCalls int
	QueryCalls   int
	Published    []string
}

// NewMockPlatform возвращает mock с успешным сценарием по умолчанию.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

// CreateListing выдаёт детерминированные идентификаторы sale/item.
func (m *MockPlatform) CreateListing(req domain.ListingRequest) (domain.Listing, error) {
	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.Listing{}, m.CreateErr
	}
	return domain.Listing{
		SaleID: fmt.Sprintf("mock-sale-%d", m.CreateCalls),
		ItemID: fmt.Sprintf("mock-item-%d", m.CreateCalls),
	}, nil
}

// PublishListing фиксирует публикацию и возвращает настроенную ошибку.
func (m *MockPlatform) PublishListing(saleID string) error {
	m.PublishCalls++
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, saleID)
	return nil
}

// QueryClosedSales возвращает настроенные закрытые продажи после since.
func (m *MockPlatform) QueryClosedSales(since time.Time) ([]domain.ClosedSale, error) {
	m.QueryCalls++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	result := make([]domain.ClosedSale, 0, len(m.Closed))
	for _, sale := range m.Closed {
		if sale.ClosedAt.Before(since) {
			continue
		}
		result = append(result, sale)
	}
	return result, nil
}

var _ domain.AuctionPlatform = (*MockPlatform)(nil)

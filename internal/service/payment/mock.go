// Package payment содержит адаптеры платёжного провайдера.
package payment

import "github.com/vladislavdragonenkov/dropship/internal/domain"

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локального запуска без реального провайдера.
type MockGateway struct {
	Invoice    domain.Invoice
	InvoiceErr error
	RefundErr  error

	InvoiceCalls int
	RefundCalls  int
	Refunds      []RefundCall
}

// RefundCall фиксирует параметры одного вызова Refund.
type RefundCall struct {
	PaymentOrderID string
	AmountMinor    int64
	Reason         string
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// GetInvoice возвращает заранее настроенный счёт и считает вызовы.
func (m *MockGateway) GetInvoice(invoiceID string) (domain.Invoice, error) {
	m.InvoiceCalls++
	if m.InvoiceErr != nil {
		return domain.Invoice{}, m.InvoiceErr
	}
	inv := m.Invoice
	if inv.ID == "" {
		inv.ID = invoiceID
	}
	return inv, nil
}

// Refund фиксирует параметры возврата и возвращает настроенную ошибку.
func (m *MockGateway) Refund(paymentOrderID string, amountMinor int64, reason string) error {
	m.RefundCalls++
	m.Refunds = append(m.Refunds, RefundCall{
		PaymentOrderID: paymentOrderID,
		AmountMinor:    amountMinor,
		Reason:         reason,
	})
	return m.RefundErr
}

var _ domain.PaymentGateway = (*MockGateway)(nil)

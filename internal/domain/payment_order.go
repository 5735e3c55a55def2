package domain

import "time"

// PaymentOrderStatus описывает состояние локальной платёжной записи.
type PaymentOrderStatus string

const (
	// PaymentOrderStatusPending — счёт выставлен, оплата не подтверждена.
	PaymentOrderStatusPending PaymentOrderStatus = "pending"
	// PaymentOrderStatusPaid — провайдер подтвердил оплату счёта.
	PaymentOrderStatusPaid PaymentOrderStatus = "paid"
	// PaymentOrderStatusFailed — провайдер отклонил платёж.
	PaymentOrderStatusFailed PaymentOrderStatus = "failed"
	// PaymentOrderStatusRefunded — средства возвращены покупателю.
	PaymentOrderStatusRefunded PaymentOrderStatus = "refunded"
)

// PaymentOrder — локальная запись, связывающая счёт платёжного провайдера
// с продажей на аукционе. Служит мостом для резолвинга лота (стратегия 5),
// когда сам webhook не несёт достаточных метаданных.
type PaymentOrder struct {
	ID          string
	InvoiceID   string
	SaleID      string
	BuyerID     string
	AmountMinor int64
	Status      PaymentOrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет минимальные требования к платёжной записи.
func (p *PaymentOrder) Validate() []error {
	var errs []error
	if p.InvoiceID == "" {
		errs = append(errs, ErrPaymentOrderInvoiceRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentOrderAmountNegative)
	}
	return errs
}

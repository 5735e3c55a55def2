// Package reconcile приводит состояние лотов в соответствие с событиями
// внешних систем: webhook платёжного провайдера, webhook поставщика и
// записи периодического sweep. Повторные и конкурентные доставки гасятся
// журналом идемпотентности, недопустимые переходы статусов — графом переходов.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// Типы событий платёжного провайдера, которые обрабатывает диспетчер.
const (
	PaymentEventInvoicePaid   = "invoice.paid"
	PaymentEventPaymentFailed = "invoice.payment_failed"
)

// PaymentEvent — нормализованное событие платёжного провайдера.
// Поля, начиная с LotIDs, опциональны: провайдер не гарантирует их наличие,
// резолвер лота проходит цепочку стратегий от точных к эвристическим.
type PaymentEvent struct {
	// ID — идентификатор события у провайдера. Пустой у провайдеров,
	// не присваивающих событиям идентификаторы, тогда ключ идемпотентности
	// выводится из содержимого.
	ID   string
	Type string

	InvoiceID   string
	SaleID      string
	BuyerID     string
	AmountMinor int64

	// LotIDs — метаданные позиций счёта, если провайдер их передал.
	LotIDs []string

	// Shipping — адрес, собранный провайдером при оплате.
	Shipping    domain.ShippingAddress
	HasShipping bool

	OccurredAt time.Time
}

// IdempotencyKey возвращает ключ дедупликации события. Приоритет — нативный
// идентификатор события провайдера; без него ключ детерминированно выводится
// из типа, счёта и суммы, чтобы повторная доставка того же payload схлопывалась.
func (e PaymentEvent) IdempotencyKey() string {
	if e.ID != "" {
		return e.ID
	}
	return contentKey(e.Type, e.InvoiceID, fmt.Sprintf("%d", e.AmountMinor))
}

// Статусы заказа поставщика, приходящие в его webhook.
const (
	SupplierOrderStatusPaid      = "PAID"
	SupplierOrderStatusShipped   = "SHIPPED"
	SupplierOrderStatusDelivered = "DELIVERED"
	SupplierOrderStatusCancelled = "CANCELLED"
)

// SupplierEvent — нормализованное событие webhook поставщика.
// Поставщик шлёт два независимых потока: смену статуса заказа и логистику
// (трек-номер). Логистика может прийти раньше формального статуса SHIPPED.
type SupplierEvent struct {
	EventID string

	OrderID     string
	OrderStatus string

	TrackingNumber  string
	TrackingCarrier string
	// Delivered взводится логистическим потоком при подтверждённом вручении.
	Delivered bool

	OccurredAt time.Time
}

// IdempotencyKey возвращает ключ дедупликации события поставщика.
func (e SupplierEvent) IdempotencyKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return contentKey(e.OrderID, e.OrderStatus, e.TrackingNumber, fmt.Sprintf("%t", e.Delivered))
}

// contentKey детерминированно сворачивает составные части в hex-ключ.
func contentKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

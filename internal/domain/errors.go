package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора товара поставщика.
	ErrSupplierProductRequired = errors.New("supplier product id is required")
	// Ошибка отрицательной закупочной цены.
	ErrCostNegative = errors.New("supplier cost must be non-negative")
	// Ошибка неизвестного статуса лота.
	ErrLotStatusUnknown = errors.New("unknown lot status")
	// Ошибка отрицательной стартовой или резервной цены.
	ErrPriceNegative = errors.New("start bid and reserve must be non-negative")
	// Ошибка отрицательной суммы выигрышной ставки.
	ErrWinningBidNegative = errors.New("winning bid must be non-negative")
	// ErrLotNotFound возвращается, если лот не найден в репозитории.
	ErrLotNotFound = errors.New("lot not found")
	// ErrLotVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrLotVersionConflict = errors.New("lot version conflict")
	// ErrEventAlreadyProcessed — событие с таким (source, key) уже обработано.
	ErrEventAlreadyProcessed = errors.New("event already processed")
	// ErrEventKeyRequired — у события отсутствует ключ идемпотентности.
	ErrEventKeyRequired = errors.New("event idempotency key is required")
	// ErrEventSourceRequired — у события отсутствует источник.
	ErrEventSourceRequired = errors.New("event source is required")
	// ErrPaymentOrderNotFound — локальная платёжная запись не найдена.
	ErrPaymentOrderNotFound = errors.New("payment order not found")
	// Ошибка отсутствующего идентификатора счёта в платёжной записи.
	ErrPaymentOrderInvoiceRequired = errors.New("payment order invoice id is required")
	// Ошибка отрицательной суммы платёжной записи.
	ErrPaymentOrderAmountNegative = errors.New("payment order amount must be non-negative")
	// ErrPaymentOrderExists — платёжная запись с таким ID уже существует.
	ErrPaymentOrderExists = errors.New("payment order already exists")
	// ErrAddressNotFound — у покупателя нет сохранённого адреса доставки.
	ErrAddressNotFound = errors.New("shipping address not found")
	// ErrAddressIncomplete — адрес доставки не прошёл валидацию обязательных полей.
	ErrAddressIncomplete = errors.New("shipping address is incomplete")
	// ErrSupplierOutOfStock — перманентный отказ поставщика: товара нет в наличии.
	ErrSupplierOutOfStock = errors.New("supplier: out of stock")
	// ErrSupplierPriceChanged — перманентный отказ поставщика: цена выросла сверх буфера.
	ErrSupplierPriceChanged = errors.New("supplier: price changed")
	// ErrSupplierTemporary — временная ошибка поставщика, попытка повторится в sweep.
	ErrSupplierTemporary = errors.New("supplier: temporary error")
	// ErrGatewayTemporary — временная ошибка платёжного шлюза.
	ErrGatewayTemporary = errors.New("payment gateway: temporary error")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InvalidTransitionError описывает отклонённый переход статуса лота.
type InvalidTransitionError struct {
	From LotStatus
	To   LotStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lot transition: %s -> %s", e.From, e.To)
}

// IsInvalidTransition проверяет, является ли ошибка отклонённым переходом.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrLotVersionConflict)
}

// IsPermanentSupplierFailure отличает перманентные отказы поставщика
// (маршрутизируются в refund) от временных (повтор в следующем sweep).
func IsPermanentSupplierFailure(err error) bool {
	return errors.Is(err, ErrSupplierOutOfStock) || errors.Is(err, ErrSupplierPriceChanged)
}

package domain

import "time"

// LotRepository описывает требования к хранилищу лотов.
type LotRepository interface {
	// Create сохраняет новый лот. Возвращает ошибку, если запись с таким ID уже существует.
	Create(lot Lot) error
	// Get возвращает лот по идентификатору или ErrLotNotFound, если его нет.
	Get(id string) (Lot, error)
	// GetByAuctionItem ищет лот по идентификаторам продажи и позиции на площадке.
	GetByAuctionItem(saleID, itemID string) (Lot, error)
	// GetByPaymentOrder ищет лот по ранее записанному платёжному идентификатору.
	GetByPaymentOrder(paymentOrderID string) (Lot, error)
	// GetBySupplierOrder ищет лот по идентификатору заказа у поставщика.
	GetBySupplierOrder(supplierOrderID string) (Lot, error)
	// ListBySale возвращает лоты продажи в заданном статусе.
	ListBySale(saleID string, status LotStatus) ([]Lot, error)
	// ListStuck возвращает лоты в статусе status, не обновлявшиеся с updatedBefore.
	ListStuck(status LotStatus, updatedBefore time.Time, limit int) ([]Lot, error)
	// CountActive возвращает число лотов в нетерминальных статусах (квота закупки).
	CountActive() (int, error)
	// Save применяет обновления к лоту с учётом optimistic locking.
	Save(lot Lot) error
}

// ProcessedEventRepository — журнал обработанных событий.
type ProcessedEventRepository interface {
	// Insert выполняет insert-if-absent по паре (source, key).
	// Повторная вставка возвращает ErrEventAlreadyProcessed.
	Insert(event ProcessedEvent) error
	// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// PaymentOrderRepository хранит локальные платёжные записи.
type PaymentOrderRepository interface {
	Create(po PaymentOrder) error
	// GetByInvoice возвращает запись по идентификатору счёта или ErrPaymentOrderNotFound.
	GetByInvoice(invoiceID string) (PaymentOrder, error)
	Save(po PaymentOrder) error
}

// OutboxRepository позволяет сохранять уведомления для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// HistoryRepository хранит события жизненного цикла лота.
type HistoryRepository interface {
	Append(event HistoryEvent) error
	List(lotID string) ([]HistoryEvent, error)
}

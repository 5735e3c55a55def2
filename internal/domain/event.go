package domain

import "time"

// EventSource идентифицирует внешнюю систему-источник события.
type EventSource string

const (
	// EventSourcePayment — webhook платёжного провайдера.
	EventSourcePayment EventSource = "payment"
	// EventSourceSupplier — webhook поставщика (статус заказа, логистика).
	EventSourceSupplier EventSource = "supplier"
	// EventSourceSweep — записи, созданные периодическим sweep (poll закрытых продаж).
	EventSourceSweep EventSource = "sweep"
)

// Valid проверяет, что источник относится к поддерживаемым значениям.
func (s EventSource) Valid() bool {
	switch s {
	case EventSourcePayment, EventSourceSupplier, EventSourceSweep:
		return true
	default:
		return false
	}
}

// ProcessedEvent — запись в журнале обработанных событий.
// Уникальность пары (Source, Key) — единственная точка синхронизации
// при конкурентной/повторной доставке: insert-if-absent вместо mutex.
type ProcessedEvent struct {
	Source     EventSource
	Key        string
	ReceivedAt time.Time
	// TTLAt задаёт момент, после которого запись можно удалить из журнала.
	TTLAt time.Time
}

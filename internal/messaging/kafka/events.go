// Package kafka публикует события пайплайна в брокер: уведомления
// покупателям и критические алерты операторам.
package kafka

// Topics для Kafka.
const (
	TopicNotifications   = "dropship.notifications"
	TopicAlerts          = "dropship.alerts"
	TopicDeadLetterQueue = "dropship.dlq"
)

// Префиксы типов событий. Тип события в outbox определяет целевой topic.
const (
	EventPrefixNotify = "notify."
	EventPrefixAlert  = "alert."
)

// Kafka headers для retry-логики DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

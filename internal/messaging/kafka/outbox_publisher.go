package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая topic
// по префиксу типа события: notify.* — уведомления, alert.* — алерты.
type OutboxTopicPublisher struct {
	producer *Producer
	// defaultTopic принимает события без известного префикса.
	defaultTopic string
	// pinned отключает маршрутизацию по префиксу (DLQ-паблишер).
	pinned bool
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, defaultTopic string) domain.OutboxPublisher {
	if defaultTopic == "" {
		defaultTopic = TopicNotifications
	}
	return &OutboxTopicPublisher{
		producer:     producer,
		defaultTopic: defaultTopic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topicFor(event.EventType), key, envelope)
}

func (p *OutboxTopicPublisher) topicFor(eventType string) string {
	if p.pinned {
		return p.defaultTopic
	}
	switch {
	case strings.HasPrefix(eventType, EventPrefixNotify):
		return TopicNotifications
	case strings.HasPrefix(eventType, EventPrefixAlert):
		return TopicAlerts
	default:
		return p.defaultTopic
	}
}

// NewDLQPublisher создаёт паблишер, отправляющий всё в DLQ-topic независимо
// от типа события.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{
		producer:     producer,
		defaultTopic: TopicDeadLetterQueue,
		pinned:       true,
	}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

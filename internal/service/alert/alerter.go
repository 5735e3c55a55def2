// Package alert доставляет критические уведомления операторам через
// transactional outbox: алерт публикуется тем же worker'ом, что и
// уведомления покупателям, но уходит в отдельный topic.
package alert

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// EventTypeCritical — тип outbox-события критического алерта.
const EventTypeCritical = "alert.critical"

// OutboxAlerter кладёт алерты в outbox. Fire-and-forget: ошибка записи
// логируется и не возвращается вызывающему.
type OutboxAlerter struct {
	outbox domain.OutboxRepository
	logger *log.Entry
}

// NewOutboxAlerter создаёт alerter поверх outbox-хранилища.
func NewOutboxAlerter(outbox domain.OutboxRepository, logger *log.Entry) *OutboxAlerter {
	if logger == nil {
		logger = log.WithField("component", "alerter")
	}
	return &OutboxAlerter{outbox: outbox, logger: logger}
}

func (a *OutboxAlerter) Critical(subject, detail string) {
	payload, err := json.Marshal(map[string]string{
		"subject":   subject,
		"detail":    detail,
		"raised_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		a.logger.WithError(err).Warn("failed to marshal alert payload")
		return
	}

	if _, err := a.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "alert",
		AggregateID:   subject,
		EventType:     EventTypeCritical,
		Payload:       payload,
	}); err != nil {
		a.logger.WithError(err).WithField("subject", subject).Warn("failed to enqueue alert")
		return
	}

	a.logger.WithFields(log.Fields{
		"subject": subject,
		"detail":  detail,
	}).Warn("critical alert raised")
}

// Nop — alerter-заглушка, отбрасывающая алерты.
type Nop struct{}

func (Nop) Critical(string, string) {}

var (
	_ domain.Alerter = (*OutboxAlerter)(nil)
	_ domain.Alerter = Nop{}
)

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type eventRepository struct {
	db *sql.DB
}

// NewProcessedEventRepository создаёт PostgreSQL-журнал обработанных событий.
func NewProcessedEventRepository(store *Store) domain.ProcessedEventRepository {
	return &eventRepository{db: store.DB()}
}

// Insert выполняет insert-if-absent по первичному ключу (source, key).
// ON CONFLICT DO NOTHING делает вставку единственной точкой синхронизации:
// из конкурентных доставок выигрывает ровно одна.
func (r *eventRepository) Insert(event domain.ProcessedEvent) error {
	event.Key = strings.TrimSpace(event.Key)
	if event.Key == "" {
		return domain.ErrEventKeyRequired
	}
	if !event.Source.Valid() {
		return domain.ErrEventSourceRequired
	}
	now := time.Now().UTC()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}
	if event.TTLAt.IsZero() {
		event.TTLAt = now.Add(30 * 24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (source, key, received_at, ttl_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, key) DO NOTHING
	`, string(event.Source), event.Key, event.ReceivedAt, event.TTLAt)
	if err != nil {
		return fmt.Errorf("insert processed event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrEventAlreadyProcessed
	}
	return nil
}

// DeleteExpired удаляет записи с истёкшим TTL порцией не более limit.
func (r *eventRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	if limit <= 0 {
		limit = 500
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM processed_events
		WHERE ctid IN (
			SELECT ctid FROM processed_events
			WHERE ttl_at <= $1
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.ProcessedEventRepository = (*eventRepository)(nil)

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type historyRepository struct {
	db *sql.DB
}

// NewHistoryRepository создаёт PostgreSQL-хранилище истории лотов.
func NewHistoryRepository(store *Store) domain.HistoryRepository {
	return &historyRepository{db: store.DB()}
}

func (r *historyRepository) Append(event domain.HistoryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lot_history (lot_id, event_type, reason, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, event.LotID, event.Type, event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("insert lot history event: %w", err)
	}
	return nil
}

func (r *historyRepository) List(lotID string) ([]domain.HistoryEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT lot_id, event_type, reason, occurred_at
		FROM lot_history
		WHERE lot_id = $1
		ORDER BY occurred_at, id
	`, lotID)
	if err != nil {
		return nil, fmt.Errorf("list lot history: %w", err)
	}
	defer rows.Close()

	result := make([]domain.HistoryEvent, 0)
	for rows.Next() {
		var event domain.HistoryEvent
		if err := rows.Scan(&event.LotID, &event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan lot history event: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lot history rows: %w", err)
	}
	return result, nil
}

var _ domain.HistoryRepository = (*historyRepository)(nil)

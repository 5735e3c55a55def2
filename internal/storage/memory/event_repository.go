package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type eventRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.ProcessedEvent
}

// NewProcessedEventRepository создаёт in-memory журнал обработанных событий.
func NewProcessedEventRepository() domain.ProcessedEventRepository {
	return &eventRepositoryInMemory{
		items: make(map[string]domain.ProcessedEvent),
	}
}

// Insert выполняет insert-if-absent по паре (source, key).
func (r *eventRepositoryInMemory) Insert(event domain.ProcessedEvent) error {
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

	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey(event.Source, event.Key)
	if _, exists := r.items[key]; exists {
		return domain.ErrEventAlreadyProcessed
	}
	r.items[key] = event
	return nil
}

// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
func (r *eventRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, event := range r.items {
		if event.TTLAt.After(before) {
			continue
		}
		delete(r.items, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

func ledgerKey(source domain.EventSource, key string) string {
	return string(source) + "\x00" + key
}

var _ domain.ProcessedEventRepository = (*eventRepositoryInMemory)(nil)

package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type historyRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string][]domain.HistoryEvent
}

// NewHistoryRepository создаёт in-memory хранилище истории лотов.
func NewHistoryRepository() domain.HistoryRepository {
	return &historyRepositoryInMemory{
		items: make(map[string][]domain.HistoryEvent),
	}
}

// Append добавляет событие в историю лота.
func (r *historyRepositoryInMemory) Append(event domain.HistoryEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[event.LotID] = append(r.items[event.LotID], event)
	return nil
}

// List возвращает историю лота в хронологическом порядке.
func (r *historyRepositoryInMemory) List(lotID string) ([]domain.HistoryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := append([]domain.HistoryEvent(nil), r.items[lotID]...)
	sort.Slice(result, func(i, j int) bool { return result[i].Occurred.Before(result[j].Occurred) })
	return result, nil
}

var _ domain.HistoryRepository = (*historyRepositoryInMemory)(nil)

// Package memory содержит in-memory реализации репозиториев для локальной
// разработки и тестов. Семантика (optimistic locking, insert-if-absent)
// совпадает с postgres-реализациями.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// lotRepositoryInMemory — простая in-memory реализация LotRepository.
type lotRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Lot
}

// NewLotRepository возвращает in-memory репозиторий лотов.
func NewLotRepository() domain.LotRepository {
	return &lotRepositoryInMemory{
		items: make(map[string]domain.Lot),
	}
}

// Create сохраняет новый лот, если ID ещё не занят.
func (r *lotRepositoryInMemory) Create(lot domain.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[lot.ID]; exists {
		return domain.ErrLotVersionConflict
	}
	r.items[lot.ID] = cloneLot(lot)
	return nil
}

// Get возвращает лот или ErrLotNotFound, если его нет.
func (r *lotRepositoryInMemory) Get(id string) (domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lot, ok := r.items[id]
	if !ok {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	return cloneLot(lot), nil
}

// GetByAuctionItem ищет лот по паре (sale_id, item_id).
func (r *lotRepositoryInMemory) GetByAuctionItem(saleID, itemID string) (domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lot := range r.items {
		if lot.SaleID == saleID && lot.AuctionItemID == itemID {
			return cloneLot(lot), nil
		}
	}
	return domain.Lot{}, domain.ErrLotNotFound
}

// GetByPaymentOrder ищет лот по записанному платёжному идентификатору.
func (r *lotRepositoryInMemory) GetByPaymentOrder(paymentOrderID string) (domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if paymentOrderID == "" {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	for _, lot := range r.items {
		if lot.PaymentOrderID == paymentOrderID {
			return cloneLot(lot), nil
		}
	}
	return domain.Lot{}, domain.ErrLotNotFound
}

// GetBySupplierOrder ищет лот по идентификатору заказа у поставщика.
func (r *lotRepositoryInMemory) GetBySupplierOrder(supplierOrderID string) (domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if supplierOrderID == "" {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	for _, lot := range r.items {
		if lot.SupplierOrderID == supplierOrderID {
			return cloneLot(lot), nil
		}
	}
	return domain.Lot{}, domain.ErrLotNotFound
}

// ListBySale возвращает лоты продажи в заданном статусе, отсортированные по ID.
func (r *lotRepositoryInMemory) ListBySale(saleID string, status domain.LotStatus) ([]domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Lot, 0)
	for _, lot := range r.items {
		if lot.SaleID == saleID && lot.Status == status {
			result = append(result, cloneLot(lot))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListStuck возвращает лоты в статусе status, не обновлявшиеся с updatedBefore.
func (r *lotRepositoryInMemory) ListStuck(status domain.LotStatus, updatedBefore time.Time, limit int) ([]domain.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Lot, 0)
	for _, lot := range r.items {
		if lot.Status == status && lot.UpdatedAt.Before(updatedBefore) {
			result = append(result, cloneLot(lot))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountActive возвращает число лотов в нетерминальных статусах.
func (r *lotRepositoryInMemory) CountActive() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, lot := range r.items {
		if !lot.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// Save перезаписывает лот, проверяя версию (optimistic locking).
func (r *lotRepositoryInMemory) Save(lot domain.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[lot.ID]
	if !ok {
		return domain.ErrLotNotFound
	}
	if current.Version != lot.Version {
		return domain.ErrLotVersionConflict
	}
	lot.Version++
	r.items[lot.ID] = cloneLot(lot)
	return nil
}

// cloneLot копирует лот вместе со слайсом картинок, чтобы избежать
// непредсказуемых мутаций извне.
func cloneLot(src domain.Lot) domain.Lot {
	dst := src
	if src.ImageURLs != nil {
		dst.ImageURLs = append([]string(nil), src.ImageURLs...)
	}
	return dst
}

var _ domain.LotRepository = (*lotRepositoryInMemory)(nil)

package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type paymentOrderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.PaymentOrder
}

// NewPaymentOrderRepository создаёт in-memory хранилище платёжных записей.
func NewPaymentOrderRepository() domain.PaymentOrderRepository {
	return &paymentOrderRepositoryInMemory{
		items: make(map[string]domain.PaymentOrder),
	}
}

// Create сохраняет новую платёжную запись, если ID и счёт ещё не заняты.
func (r *paymentOrderRepositoryInMemory) Create(po domain.PaymentOrder) error {
	if errs := po.Validate(); len(errs) > 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[po.ID]; exists {
		return domain.ErrPaymentOrderExists
	}
	for _, existing := range r.items {
		if existing.InvoiceID == po.InvoiceID {
			return domain.ErrPaymentOrderExists
		}
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	r.items[po.ID] = po
	return nil
}

// GetByInvoice возвращает запись по идентификатору счёта.
func (r *paymentOrderRepositoryInMemory) GetByInvoice(invoiceID string) (domain.PaymentOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if invoiceID == "" {
		return domain.PaymentOrder{}, domain.ErrPaymentOrderNotFound
	}
	for _, po := range r.items {
		if po.InvoiceID == invoiceID {
			return po, nil
		}
	}
	return domain.PaymentOrder{}, domain.ErrPaymentOrderNotFound
}

// Save перезаписывает существующую платёжную запись.
func (r *paymentOrderRepositoryInMemory) Save(po domain.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[po.ID]; !ok {
		return domain.ErrPaymentOrderNotFound
	}
	po.UpdatedAt = time.Now().UTC()
	r.items[po.ID] = po
	return nil
}

var _ domain.PaymentOrderRepository = (*paymentOrderRepositoryInMemory)(nil)

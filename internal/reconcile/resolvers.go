package reconcile

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// lotResolver находит лоты, к которым относится платёжное событие.
// Провайдеры по-разному теряют метаданные, поэтому резолвинг — упорядоченная
// цепочка стратегий от точных к эвристическим; первая успешная останавливает проход.
type lotResolver struct {
	lots      domain.LotRepository
	payOrders domain.PaymentOrderRepository
	gateway   domain.PaymentGateway
	logger    *log.Entry
}

// Resolve возвращает лоты события вместе с именем сработавшей стратегии.
// Пустой результат без ошибки означает, что событие не удалось привязать
// ни одной стратегией, решение об алерте принимает вызывающий.
func (r *lotResolver) Resolve(e PaymentEvent) ([]domain.Lot, string, error) {
	strategies := []struct {
		name string
		run  func(PaymentEvent) ([]domain.Lot, error)
	}{
		{"line_items", r.byLineItems},
		{"invoice_refetch", r.byInvoiceRefetch},
		{"payment_order", r.byPaymentOrder},
		{"sale_scan", r.bySaleScan},
		{"bridge_scan", r.byBridgeScan},
	}

	for _, s := range strategies {
		lots, err := s.run(e)
		if err != nil {
			return nil, s.name, err
		}
		if len(lots) > 0 {
			return lots, s.name, nil
		}
	}
	return nil, "", nil
}

// byLineItems использует метаданные позиций счёта из самого события.
func (r *lotResolver) byLineItems(e PaymentEvent) ([]domain.Lot, error) {
	return r.collect(e.LotIDs)
}

// byInvoiceRefetch перечитывает счёт у провайдера: метаданные позиций
// часто есть в полном объекте счёта, даже когда webhook-payload их не несёт.
func (r *lotResolver) byInvoiceRefetch(e PaymentEvent) ([]domain.Lot, error) {
	if e.InvoiceID == "" || r.gateway == nil {
		return nil, nil
	}
	invoice, err := r.gateway.GetInvoice(e.InvoiceID)
	if err != nil {
		// Временный сбой провайдера не должен ронять весь резолвинг:
		// дальше по цепочке есть локальные стратегии.
		r.logger.WithError(err).WithField("invoice_id", e.InvoiceID).Warn("invoice refetch failed")
		return nil, nil
	}
	ids := make([]string, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		if line.LotID != "" {
			ids = append(ids, line.LotID)
		}
	}
	return r.collect(ids)
}

// byPaymentOrder идёт через локальную платёжную запись: если лот уже был
// привязан к этому платежу в предыдущей доставке, находим его напрямую.
func (r *lotResolver) byPaymentOrder(e PaymentEvent) ([]domain.Lot, error) {
	if e.InvoiceID == "" {
		return nil, nil
	}
	po, err := r.payOrders.GetByInvoice(e.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	lot, err := r.lots.GetByPaymentOrder(po.ID)
	if err != nil {
		if errors.Is(err, domain.ErrLotNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []domain.Lot{lot}, nil
}

// bySaleScan перебирает лоты продажи, ожидающие оплаты, и сужает выбор
// по победителю, когда событие несёт идентификатор покупателя.
func (r *lotResolver) bySaleScan(e PaymentEvent) ([]domain.Lot, error) {
	return r.scanSale(e.SaleID, e.BuyerID)
}

// byBridgeScan — последняя стратегия: sale_id берётся не из события,
// а из платёжной записи-моста, созданной при выставлении счёта.
func (r *lotResolver) byBridgeScan(e PaymentEvent) ([]domain.Lot, error) {
	if e.InvoiceID == "" {
		return nil, nil
	}
	po, err := r.payOrders.GetByInvoice(e.InvoiceID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	buyer := e.BuyerID
	if buyer == "" {
		buyer = po.BuyerID
	}
	return r.scanSale(po.SaleID, buyer)
}

func (r *lotResolver) scanSale(saleID, buyerID string) ([]domain.Lot, error) {
	if saleID == "" {
		return nil, nil
	}
	candidates, err := r.lots.ListBySale(saleID, domain.LotStatusAuctionClosed)
	if err != nil {
		return nil, err
	}
	if buyerID == "" {
		return candidates, nil
	}
	matched := make([]domain.Lot, 0, len(candidates))
	for _, lot := range candidates {
		if lot.WinnerID == buyerID {
			matched = append(matched, lot)
		}
	}
	return matched, nil
}

func (r *lotResolver) collect(ids []string) ([]domain.Lot, error) {
	lots := make([]domain.Lot, 0, len(ids))
	for _, id := range ids {
		lot, err := r.lots.Get(id)
		if err != nil {
			if errors.Is(err, domain.ErrLotNotFound) {
				r.logger.WithField("lot_id", id).Warn("event references unknown lot")
				continue
			}
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

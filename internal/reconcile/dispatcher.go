package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/metrics"
)

// Типы событий, публикуемых диспетчером в transactional outbox.
const (
	EventTypePaymentReceived = "notify.payment_received"
	EventTypePaymentFailed   = "notify.payment_failed"
	EventTypeShipped         = "notify.shipped"
)

// defaultLedgerTTL — срок хранения записи в журнале идемпотентности.
// Должен превышать максимальное окно повторных доставок у внешних систем.
const defaultLedgerTTL = 30 * 24 * time.Hour

// Config собирает зависимости диспетчера.
type Config struct {
	Lots          domain.LotRepository
	Events        domain.ProcessedEventRepository
	PaymentOrders domain.PaymentOrderRepository
	Outbox        domain.OutboxRepository
	History       domain.HistoryRepository

	Gateway  domain.PaymentGateway
	Supplier domain.SupplierService
	Buyers   domain.BuyerDirectory
	Alerts   domain.Alerter

	Logger  *log.Entry
	Metrics *metrics.PipelineMetrics
	// LedgerTTL — срок хранения записей идемпотентности; 0 означает значение по умолчанию.
	LedgerTTL time.Duration
}

// Dispatcher — точка входа всех событий пайплайна. Каждое событие проходит
// журнал идемпотентности, резолвинг лота и переход по графу статусов;
// конкурентные записи разводятся optimistic locking на уровне репозитория.
type Dispatcher struct {
	lots      domain.LotRepository
	events    domain.ProcessedEventRepository
	payOrders domain.PaymentOrderRepository
	outbox    domain.OutboxRepository
	history   domain.HistoryRepository

	gateway  domain.PaymentGateway
	supplier domain.SupplierService
	buyers   domain.BuyerDirectory
	alerts   domain.Alerter

	resolver *lotResolver

	logger    *log.Entry
	metrics   *metrics.PipelineMetrics
	ledgerTTL time.Duration
}

// NewDispatcher создаёт рабочий экземпляр диспетчера.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	ttl := cfg.LedgerTTL
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &Dispatcher{
		lots:      cfg.Lots,
		events:    cfg.Events,
		payOrders: cfg.PaymentOrders,
		outbox:    cfg.Outbox,
		history:   cfg.History,
		gateway:   cfg.Gateway,
		supplier:  cfg.Supplier,
		buyers:    cfg.Buyers,
		alerts:    cfg.Alerts,
		resolver: &lotResolver{
			lots:      cfg.Lots,
			payOrders: cfg.PaymentOrders,
			gateway:   cfg.Gateway,
			logger:    logger,
		},
		logger:    logger,
		metrics:   cfg.Metrics,
		ledgerTTL: ttl,
	}
}

// HandlePaymentEvent обрабатывает событие платёжного провайдера.
// Повторная доставка того же события — no-op без ошибки.
func (d *Dispatcher) HandlePaymentEvent(e PaymentEvent) error {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveDispatchDuration(time.Since(start))
		}
	}()

	if e.Type != PaymentEventInvoicePaid && e.Type != PaymentEventPaymentFailed {
		d.logger.WithField("type", e.Type).Debug("ignoring unsupported payment event type")
		d.recordEvent(domain.EventSourcePayment, "ignored")
		return nil
	}

	if duplicate, err := d.claim(domain.EventSourcePayment, e.IdempotencyKey()); err != nil {
		return err
	} else if duplicate {
		return nil
	}

	lots, strategy, err := d.resolver.Resolve(e)
	if err != nil {
		d.recordEvent(domain.EventSourcePayment, "error")
		return fmt.Errorf("resolve payment event: %w", err)
	}
	if len(lots) == 0 {
		// Провайдер шлёт события по всем платежам аккаунта, не только по
		// дропшип-лотам: отсутствие совпадения — штатный no-op.
		d.logger.WithFields(log.Fields{
			"event_id":   e.ID,
			"invoice_id": e.InvoiceID,
			"sale_id":    e.SaleID,
		}).Info("payment event does not match any lot, ignoring")
		d.recordEvent(domain.EventSourcePayment, "unresolved")
		return nil
	}

	d.logger.WithFields(log.Fields{
		"invoice_id": e.InvoiceID,
		"strategy":   strategy,
		"lots":       len(lots),
	}).Info("payment event resolved")

	for _, lot := range lots {
		switch e.Type {
		case PaymentEventInvoicePaid:
			err = d.handleInvoicePaid(lot, e, len(lots))
		case PaymentEventPaymentFailed:
			err = d.handlePaymentFailed(lot, e)
		}
		if err != nil {
			d.recordEvent(domain.EventSourcePayment, "error")
			return err
		}
	}

	d.recordEvent(domain.EventSourcePayment, "ok")
	return nil
}

// handleInvoicePaid переводит лот в PAID и запускает исполнение у поставщика.
func (d *Dispatcher) handleInvoicePaid(lot domain.Lot, e PaymentEvent, lotCount int) error {
	if err := d.ensurePaymentOrder(e); err != nil {
		return err
	}

	// Выручка по конкретному лоту известна точно только для одиночного счёта.
	proceeds := lot.WinningBidMinor
	if lotCount == 1 && e.AmountMinor > 0 {
		proceeds = e.AmountMinor
	}

	applied := false
	fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
		applied = false
		if l.Status == domain.LotStatusPaid {
			return nil // повторная доставка уже применённого платежа
		}
		if err := l.TransitionTo(domain.LotStatusPaid); err != nil {
			return err
		}
		l.InvoiceID = e.InvoiceID
		if po, err := d.payOrders.GetByInvoice(e.InvoiceID); err == nil {
			l.PaymentOrderID = po.ID
		}
		l.PaidAt = e.OccurredAt
		if l.PaidAt.IsZero() {
			l.PaidAt = time.Now().UTC()
		}
		if l.TotalCostMinor > 0 {
			l.ProfitMinor = proceeds - l.TotalCostMinor
		}
		l.ErrorMessage = ""
		applied = true
		return nil
	})
	if err != nil {
		if domain.IsInvalidTransition(err) {
			// Лот уже ушёл дальше по пайплайну: платёж дублирует состояние.
			d.logger.WithError(err).WithField("lot_id", lot.ID).Debug("payment for lot past PAID, skipping")
			return nil
		}
		return err
	}

	// История и уведомление — только при фактическом переходе в PAID:
	// повторная доставка под новым event id не должна их дублировать.
	if applied {
		d.appendHistory(fresh.ID, "payment_received", e.InvoiceID)
		d.enqueueNotification(fresh, EventTypePaymentReceived, map[string]interface{}{
			"invoice_id":   fresh.InvoiceID,
			"amount_minor": proceeds,
			"winner_id":    fresh.WinnerID,
		})
	}

	addr, addrErr := d.resolveAddress(fresh, e)
	if addrErr != nil {
		return d.toAddressIncomplete(fresh, addr)
	}

	fresh, err = d.update(fresh.ID, func(l *domain.Lot) error {
		l.Shipping = addr
		return nil
	})
	if err != nil {
		return err
	}

	return d.fulfill(fresh)
}

// handlePaymentFailed фиксирует отклонённый платёж. Лот остаётся доступным
// для повторной успешной оплаты (PAYMENT_FAILED → PAID).
func (d *Dispatcher) handlePaymentFailed(lot domain.Lot, e PaymentEvent) error {
	applied := false
	fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
		applied = false
		if l.Status == domain.LotStatusPaymentFailed {
			return nil
		}
		if err := l.TransitionTo(domain.LotStatusPaymentFailed); err != nil {
			return err
		}
		l.InvoiceID = e.InvoiceID
		l.ErrorMessage = "payment failed"
		applied = true
		return nil
	})
	if err != nil {
		if domain.IsInvalidTransition(err) {
			d.logger.WithError(err).WithField("lot_id", lot.ID).Debug("payment failure for lot past AUCTION_CLOSED, skipping")
			return nil
		}
		return err
	}

	if applied {
		d.appendHistory(fresh.ID, "payment_failed", e.InvoiceID)
		d.enqueueNotification(fresh, EventTypePaymentFailed, map[string]interface{}{
			"invoice_id": e.InvoiceID,
			"winner_id":  fresh.WinnerID,
		})
	}
	return nil
}

// HandleSupplierEvent обрабатывает webhook поставщика: смену статуса заказа
// и логистический поток с трек-номером. Уведомление об отгрузке публикуется
// только из потока статусов, логистика лишь продвигает статус лота.
func (d *Dispatcher) HandleSupplierEvent(e SupplierEvent) error {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveDispatchDuration(time.Since(start))
		}
	}()

	if duplicate, err := d.claim(domain.EventSourceSupplier, e.IdempotencyKey()); err != nil {
		return err
	} else if duplicate {
		return nil
	}

	lot, err := d.lots.GetBySupplierOrder(e.OrderID)
	if err != nil {
		d.logger.WithError(err).WithField("supplier_order_id", e.OrderID).Warn("supplier event references unknown order")
		d.recordEvent(domain.EventSourceSupplier, "unresolved")
		return nil
	}

	switch {
	case e.OrderStatus != "":
		err = d.applySupplierStatus(lot, e)
	case e.Delivered:
		err = d.applyLogistics(lot, e, domain.LotStatusDelivered)
	case e.TrackingNumber != "":
		err = d.applyLogistics(lot, e, domain.LotStatusShipped)
	default:
		d.logger.WithField("supplier_order_id", e.OrderID).Debug("empty supplier event, nothing to apply")
	}
	if err != nil {
		d.recordEvent(domain.EventSourceSupplier, "error")
		return err
	}

	d.recordEvent(domain.EventSourceSupplier, "ok")
	return nil
}

func (d *Dispatcher) applySupplierStatus(lot domain.Lot, e SupplierEvent) error {
	switch e.OrderStatus {
	case SupplierOrderStatusPaid:
		_, err := d.advance(lot.ID, domain.LotStatusCJPaid, e)
		return err

	case SupplierOrderStatusShipped:
		fresh, err := d.advance(lot.ID, domain.LotStatusShipped, e)
		if err != nil {
			return err
		}
		if fresh.Status == domain.LotStatusShipped {
			d.enqueueNotification(fresh, EventTypeShipped, map[string]interface{}{
				"tracking_number":  fresh.TrackingNumber,
				"tracking_carrier": fresh.TrackingCarrier,
				"winner_id":        fresh.WinnerID,
			})
		}
		return nil

	case SupplierOrderStatusDelivered:
		_, err := d.advance(lot.ID, domain.LotStatusDelivered, e)
		return err

	case SupplierOrderStatusCancelled:
		// Отмена на стороне поставщика эквивалентна невозможности исполнения:
		// лот уходит в ветку возврата средств.
		fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
			if l.Status == domain.LotStatusCJOutOfStock {
				return nil
			}
			if err := l.TransitionTo(domain.LotStatusCJOutOfStock); err != nil {
				return err
			}
			l.ErrorMessage = "supplier cancelled order " + e.OrderID
			return nil
		})
		if err != nil {
			if domain.IsInvalidTransition(err) {
				d.logger.WithError(err).WithField("lot_id", lot.ID).Warn("supplier cancellation rejected by transition graph")
				return nil
			}
			return err
		}
		d.appendHistory(fresh.ID, "supplier_cancelled", e.OrderID)
		d.alert("supplier cancelled order",
			fmt.Sprintf("lot %s, supplier order %s", fresh.ID, e.OrderID))
		return nil

	default:
		d.logger.WithFields(log.Fields{
			"lot_id": lot.ID,
			"status": e.OrderStatus,
		}).Debug("ignoring unknown supplier order status")
		return nil
	}
}

// applyLogistics продвигает лот по логистическому потоку без уведомлений.
func (d *Dispatcher) applyLogistics(lot domain.Lot, e SupplierEvent, target domain.LotStatus) error {
	_, err := d.advance(lot.ID, target, e)
	return err
}

// fulfillmentPath — прямой путь исполнения; advance проходит по нему
// промежуточные статусы, когда внешняя система перепрыгивает шаги.
var fulfillmentPath = []domain.LotStatus{
	domain.LotStatusPaid,
	domain.LotStatusCJOrdered,
	domain.LotStatusCJPaid,
	domain.LotStatusShipped,
	domain.LotStatusDelivered,
}

// advance переводит лот вперёд по пути исполнения до target включительно.
// Лот, уже достигший target или ушедший дальше, не изменяется.
func (d *Dispatcher) advance(lotID string, target domain.LotStatus, e SupplierEvent) (domain.Lot, error) {
	pos := func(s domain.LotStatus) int {
		for i, v := range fulfillmentPath {
			if v == s {
				return i
			}
		}
		return -1
	}

	fresh, err := d.update(lotID, func(l *domain.Lot) error {
		from, to := pos(l.Status), pos(target)
		if to < 0 {
			return &domain.InvalidTransitionError{From: l.Status, To: target}
		}
		if from < 0 || from >= to {
			return nil // вне пути исполнения или уже достигнут
		}
		for i := from + 1; i <= to; i++ {
			if err := l.TransitionTo(fulfillmentPath[i]); err != nil {
				return err
			}
		}
		if e.TrackingNumber != "" {
			l.TrackingNumber = e.TrackingNumber
			l.TrackingCarrier = e.TrackingCarrier
		}
		if e.OrderStatus != "" {
			l.SupplierOrderStatus = e.OrderStatus
		}
		return nil
	})
	if err != nil {
		if domain.IsInvalidTransition(err) {
			d.logger.WithError(err).WithFields(log.Fields{
				"lot_id": lotID,
				"target": target,
			}).Warn("supplier event rejected by transition graph")
			if d.metrics != nil {
				d.metrics.RecordInvalidTransition()
			}
			return domain.Lot{}, nil
		}
		return domain.Lot{}, err
	}

	if fresh.Status == target {
		d.appendHistory(fresh.ID, "supplier_status", string(target))
	}
	return fresh, nil
}

// Fulfill размещает заказ у поставщика для оплаченного лота.
// Вызывается из платёжного потока и повторно из sweep для застрявших лотов.
func (d *Dispatcher) Fulfill(lotID string) error {
	lot, err := d.lots.Get(lotID)
	if err != nil {
		return err
	}
	return d.fulfill(lot)
}

func (d *Dispatcher) fulfill(lot domain.Lot) error {
	if lot.Status != domain.LotStatusPaid {
		d.logger.WithFields(log.Fields{
			"lot_id": lot.ID,
			"status": lot.Status,
		}).Debug("fulfill skipped for lot not in PAID")
		return nil
	}
	if lot.SupplierOrderID != "" {
		// Заказ уже размещён предыдущей попыткой, которая упала до смены статуса.
		_, err := d.update(lot.ID, func(l *domain.Lot) error {
			if l.Status != domain.LotStatusPaid {
				return nil
			}
			return l.TransitionTo(domain.LotStatusCJOrdered)
		})
		return err
	}
	if err := lot.Shipping.Validate(); err != nil {
		return d.toAddressIncomplete(lot, lot.Shipping)
	}

	order, err := d.supplier.PlaceOrder(domain.SupplierOrderRequest{
		LotID:     lot.ID,
		ProductID: lot.SupplierProductID,
		VariantID: lot.SupplierVariantID,
		Address:   lot.Shipping,
	})
	if err != nil {
		return d.handleSupplierFailure(lot, err)
	}

	fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
		if l.Status != domain.LotStatusPaid {
			return nil
		}
		if err := l.TransitionTo(domain.LotStatusCJOrdered); err != nil {
			return err
		}
		l.SupplierOrderID = order.OrderID
		l.SupplierOrderNumber = order.OrderNumber
		l.SupplierOrderStatus = order.Status
		l.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.RecordSupplierOrder("ok")
	}
	d.appendHistory(fresh.ID, "supplier_ordered", order.OrderID)
	d.logger.WithFields(log.Fields{
		"lot_id":            fresh.ID,
		"supplier_order_id": order.OrderID,
	}).Info("supplier order placed")
	return nil
}

// handleSupplierFailure маршрутизирует отказ поставщика: перманентные отказы
// переводят лот в статус ветки возврата, временные оставляют лот в PAID
// для повтора следующим sweep.
func (d *Dispatcher) handleSupplierFailure(lot domain.Lot, cause error) error {
	if !domain.IsPermanentSupplierFailure(cause) {
		if d.metrics != nil {
			d.metrics.RecordSupplierOrder("temporary_error")
		}
		if _, err := d.update(lot.ID, func(l *domain.Lot) error {
			l.ErrorMessage = cause.Error()
			return nil
		}); err != nil {
			return err
		}
		d.logger.WithError(cause).WithField("lot_id", lot.ID).Warn("supplier order failed, will retry on sweep")
		return fmt.Errorf("place supplier order for lot %s: %w", lot.ID, cause)
	}

	target := domain.LotStatusCJOutOfStock
	historyType := "supplier_out_of_stock"
	if errors.Is(cause, domain.ErrSupplierPriceChanged) {
		target = domain.LotStatusCJPriceChanged
		historyType = "supplier_price_changed"
	}

	fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
		if l.Status == target {
			return nil
		}
		if err := l.TransitionTo(target); err != nil {
			return err
		}
		l.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.RecordSupplierOrder("permanent_error")
	}
	d.appendHistory(fresh.ID, historyType, cause.Error())
	d.alert("supplier order rejected",
		fmt.Sprintf("lot %s: %s; refund will be issued by sweep", fresh.ID, cause))
	return nil
}

// toAddressIncomplete паркует лот до ручного вмешательства: заказ поставщику
// с неполным адресом не размещается никогда.
func (d *Dispatcher) toAddressIncomplete(lot domain.Lot, best domain.ShippingAddress) error {
	missing := best.MissingFields()
	fresh, err := d.update(lot.ID, func(l *domain.Lot) error {
		if l.Status == domain.LotStatusAddressIncomplete {
			return nil
		}
		if err := l.TransitionTo(domain.LotStatusAddressIncomplete); err != nil {
			return err
		}
		l.Shipping = best
		l.ErrorMessage = fmt.Sprintf("shipping address incomplete, missing: %v", missing)
		return nil
	})
	if err != nil {
		if domain.IsInvalidTransition(err) {
			return nil
		}
		return err
	}

	d.appendHistory(fresh.ID, "address_incomplete", fmt.Sprintf("%v", missing))
	d.alert("shipping address incomplete",
		fmt.Sprintf("lot %s, winner %s, missing fields %v", fresh.ID, fresh.WinnerID, missing))
	return nil
}

// claim занимает ключ идемпотентности. Возвращает true для дубликата.
func (d *Dispatcher) claim(source domain.EventSource, key string) (bool, error) {
	now := time.Now().UTC()
	err := d.events.Insert(domain.ProcessedEvent{
		Source:     source,
		Key:        key,
		ReceivedAt: now,
		TTLAt:      now.Add(d.ledgerTTL),
	})
	if err == nil {
		return false, nil
	}
	if errors.Is(err, domain.ErrEventAlreadyProcessed) {
		d.logger.WithFields(log.Fields{
			"source": source,
			"key":    key,
		}).Debug("duplicate event dropped")
		if d.metrics != nil {
			d.metrics.RecordDuplicateEvent()
		}
		d.recordEvent(source, "duplicate")
		return true, nil
	}
	d.recordEvent(source, "error")
	return false, fmt.Errorf("claim event %s/%s: %w", source, key, err)
}

// ensurePaymentOrder поддерживает платёжную запись-мост в актуальном состоянии.
func (d *Dispatcher) ensurePaymentOrder(e PaymentEvent) error {
	now := time.Now().UTC()
	po, err := d.payOrders.GetByInvoice(e.InvoiceID)
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentOrderNotFound) {
			return err
		}
		po = domain.PaymentOrder{
			ID:          uuid.NewString(),
			InvoiceID:   e.InvoiceID,
			SaleID:      e.SaleID,
			BuyerID:     e.BuyerID,
			AmountMinor: e.AmountMinor,
			Status:      domain.PaymentOrderStatusPaid,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return d.payOrders.Create(po)
	}
	if po.Status == domain.PaymentOrderStatusPaid {
		return nil
	}
	po.Status = domain.PaymentOrderStatusPaid
	if e.AmountMinor > 0 {
		po.AmountMinor = e.AmountMinor
	}
	po.UpdatedAt = now
	return d.payOrders.Save(po)
}

// update применяет мутацию к лоту с повтором при конфликте версий:
// перечитываем свежую версию и накатываем мутацию заново.
func (d *Dispatcher) update(lotID string, mutate func(*domain.Lot) error) (domain.Lot, error) {
	const maxRetries = 3

	var lot domain.Lot
	for attempt := 0; attempt < maxRetries; attempt++ {
		fresh, err := d.lots.Get(lotID)
		if err != nil {
			return domain.Lot{}, err
		}

		before := fresh.Status
		if err := mutate(&fresh); err != nil {
			return domain.Lot{}, err
		}

		if err := d.lots.Save(fresh); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				d.logger.WithFields(log.Fields{
					"lot_id":  lotID,
					"attempt": attempt + 1,
				}).Warn("lot version conflict, retrying")
				continue
			}
			return domain.Lot{}, err
		}

		if fresh.Status != before && d.metrics != nil {
			d.metrics.RecordTransition(string(fresh.Status))
		}
		lot = fresh
		return lot, nil
	}
	return domain.Lot{}, domain.ErrLotVersionConflict
}

func (d *Dispatcher) appendHistory(lotID, eventType, reason string) {
	if d.history == nil {
		return
	}
	err := d.history.Append(domain.HistoryEvent{
		LotID:    lotID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		d.logger.WithError(err).WithField("lot_id", lotID).Warn("failed to append lot history")
	}
}

// enqueueNotification кладёт уведомление в outbox; сбой записи логируется,
// но не прерывает обработку события.
func (d *Dispatcher) enqueueNotification(lot domain.Lot, eventType string, payload map[string]interface{}) {
	if d.outbox == nil {
		return
	}
	payload["lot_id"] = lot.ID
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).WithField("lot_id", lot.ID).Error("failed to marshal notification payload")
		return
	}
	_, err = d.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "lot",
		AggregateID:   lot.ID,
		EventType:     eventType,
		Payload:       body,
	})
	if err != nil {
		d.logger.WithError(err).WithField("lot_id", lot.ID).Warn("failed to enqueue notification")
	}
}

func (d *Dispatcher) alert(subject, detail string) {
	if d.alerts == nil {
		return
	}
	d.alerts.Critical(subject, detail)
}

func (d *Dispatcher) recordEvent(source domain.EventSource, result string) {
	if d.metrics != nil {
		d.metrics.RecordEvent(string(source), result)
	}
}


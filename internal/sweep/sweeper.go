// Package sweep реализует периодический обход пайплайна: опрос закрытых
// продаж, повтор застрявшего исполнения и возвраты по неисполнимым лотам.
// Каждый шаг изолирован: паника или ошибка одного шага не мешает остальным.
package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/metrics"
)

const (
	defaultStaleness = 30 * time.Minute
	defaultBatchSize = 100
	// defaultPollLookback — насколько назад смотрит первый опрос закрытых продаж.
	defaultPollLookback = 24 * time.Hour
)

// EventTypeRefunded — уведомление о возврате средств, публикуемое из sweep.
const EventTypeRefunded = "notify.refunded"

// Fulfiller повторяет размещение заказа у поставщика для оплаченного лота.
type Fulfiller interface {
	Fulfill(lotID string) error
}

// StepResult — итог одного шага sweep.
type StepResult struct {
	OK        bool
	Processed int
	Error     error
}

// Result агрегирует итоги всех шагов одного прохода.
type Result struct {
	Poll        StepResult
	Fulfillment StepResult
	Refunds     StepResult
}

// Config собирает зависимости и параметры sweep.
type Config struct {
	Lots      domain.LotRepository
	PayOrders domain.PaymentOrderRepository
	Outbox    domain.OutboxRepository
	History   domain.HistoryRepository

	Auction   domain.AuctionPlatform
	Gateway   domain.PaymentGateway
	Fulfiller Fulfiller
	Alerts    domain.Alerter

	Logger  *log.Entry
	Metrics *metrics.PipelineMetrics

	// Staleness — сколько лот может висеть в PAID, прежде чем sweep повторит исполнение.
	Staleness time.Duration
	BatchSize int
}

// Sweeper выполняет один проход по трём шагам. Проходы сериализуются:
// Run могут конкурентно звать периодический Runner и HTTP-триггер.
type Sweeper struct {
	lots      domain.LotRepository
	payOrders domain.PaymentOrderRepository
	outbox    domain.OutboxRepository
	history   domain.HistoryRepository

	auction   domain.AuctionPlatform
	gateway   domain.PaymentGateway
	fulfiller Fulfiller
	alerts    domain.Alerter

	logger  *log.Entry
	metrics *metrics.PipelineMetrics

	staleness time.Duration
	batchSize int

	mu sync.Mutex
	// lastPoll — нижняя граница следующего опроса закрытых продаж.
	lastPoll time.Time
}

// NewSweeper создаёт Sweeper с параметрами по умолчанию для незаполненных полей.
func NewSweeper(cfg Config) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "sweep")
	}
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sweeper{
		lots:      cfg.Lots,
		payOrders: cfg.PayOrders,
		outbox:    cfg.Outbox,
		history:   cfg.History,
		auction:   cfg.Auction,
		gateway:   cfg.Gateway,
		fulfiller: cfg.Fulfiller,
		alerts:    cfg.Alerts,
		logger:    logger,
		metrics:   cfg.Metrics,
		staleness: staleness,
		batchSize: batch,
		lastPoll:  time.Now().UTC().Add(-defaultPollLookback),
	}
}

// Run выполняет один полный проход. Ошибки шагов собираются в Result,
// наружу возвращается только он: один упавший шаг не отменяет остальные.
func (s *Sweeper) Run() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := Result{
		Poll:        s.step("poll", s.pollClosedSales),
		Fulfillment: s.step("fulfillment", s.retryFulfillment),
		Refunds:     s.step("refunds", s.issueRefunds),
	}
	s.logger.WithFields(log.Fields{
		"poll_ok":    result.Poll.OK,
		"fulfill_ok": result.Fulfillment.OK,
		"refunds_ok": result.Refunds.OK,
		"poll_n":     result.Poll.Processed,
		"fulfill_n":  result.Fulfillment.Processed,
		"refunds_n":  result.Refunds.Processed,
	}).Debug("sweep pass finished")
	return result
}

// step запускает шаг с изоляцией паник и учётом метрик.
func (s *Sweeper) step(name string, fn func() (int, error)) (out StepResult) {
	defer func() {
		if r := recover(); r != nil {
			out = StepResult{Error: fmt.Errorf("sweep step %s panicked: %v", name, r)}
			s.logger.WithField("step", name).Errorf("sweep step panicked: %v", r)
		}
		outcome := "ok"
		if !out.OK {
			outcome = "error"
		}
		if s.metrics != nil {
			s.metrics.RecordSweepStep(name, outcome)
		}
	}()

	processed, err := fn()
	if err != nil {
		s.logger.WithError(err).WithField("step", name).Warn("sweep step failed")
		return StepResult{Processed: processed, Error: err}
	}
	return StepResult{OK: true, Processed: processed}
}

// pollClosedSales опрашивает площадку и закрывает аукционы локально:
// победитель и сумма фиксируются ровно один раз.
func (s *Sweeper) pollClosedSales() (int, error) {
	if s.auction == nil {
		return 0, nil
	}

	since := s.lastPoll
	now := time.Now().UTC()

	sales, err := s.auction.QueryClosedSales(since)
	if err != nil {
		return 0, fmt.Errorf("query closed sales: %w", err)
	}

	processed := 0
	failed := 0
	for _, sale := range sales {
		if err := s.closeSale(sale); err != nil {
			// Одна продажа не должна блокировать остальные: лог и дальше.
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": sale.SaleID,
				"item_id": sale.ItemID,
			}).Warn("failed to close sale")
			failed++
			continue
		}
		processed++
	}

	// Граница опроса сдвигается только после прохода без сбоев: упавшая
	// продажа должна попасть в следующую выборку, повтор уже закрытых
	// продаж безвреден (closeSale пропускает лоты не в PUBLISHED).
	if failed == 0 {
		s.lastPoll = now
	}
	return processed, nil
}

func (s *Sweeper) closeSale(sale domain.ClosedSale) error {
	lot, err := s.lots.GetByAuctionItem(sale.SaleID, sale.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrLotNotFound) {
			s.logger.WithFields(log.Fields{
				"sale_id": sale.SaleID,
				"item_id": sale.ItemID,
			}).Warn("closed sale references unknown lot")
			return nil
		}
		return err
	}
	if lot.Status != domain.LotStatusPublished {
		// Продажа уже закрыта более ранним проходом или событием.
		return nil
	}

	target := domain.LotStatusReserveNotMet
	if sale.ReserveMet {
		target = domain.LotStatusAuctionClosed
	}
	if err := lot.TransitionTo(target); err != nil {
		return err
	}
	if sale.ReserveMet {
		lot.WinnerID = sale.WinnerID
		lot.WinningBidMinor = sale.HammerMinor
	}
	if err := s.lots.Save(lot); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(target))
	}
	s.appendHistory(lot.ID, "auction_closed", string(target))
	return nil
}

// retryFulfillment повторяет исполнение для лотов, застрявших в PAID.
func (s *Sweeper) retryFulfillment() (int, error) {
	if s.fulfiller == nil {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-s.staleness)
	stuck, err := s.lots.ListStuck(domain.LotStatusPaid, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stuck lots: %w", err)
	}

	processed := 0
	for _, lot := range stuck {
		if err := s.fulfiller.Fulfill(lot.ID); err != nil {
			s.logger.WithError(err).WithField("lot_id", lot.ID).Warn("fulfillment retry failed")
			continue
		}
		processed++
	}
	return processed, nil
}

// issueRefunds возвращает деньги победителям неисполнимых лотов и закрывает лоты.
func (s *Sweeper) issueRefunds() (int, error) {
	if s.gateway == nil {
		return 0, nil
	}

	now := time.Now().UTC()
	processed := 0
	for _, status := range []domain.LotStatus{domain.LotStatusCJOutOfStock, domain.LotStatusCJPriceChanged} {
		lots, err := s.lots.ListStuck(status, now, s.batchSize)
		if err != nil {
			return processed, fmt.Errorf("list %s lots: %w", status, err)
		}
		for _, lot := range lots {
			if err := s.refundLot(lot); err != nil {
				s.logger.WithError(err).WithField("lot_id", lot.ID).Warn("refund failed")
				continue
			}
			processed++
		}
	}
	return processed, nil
}

func (s *Sweeper) refundLot(lot domain.Lot) error {
	amount := lot.WinningBidMinor
	var po domain.PaymentOrder
	var havePO bool
	if s.payOrders != nil && lot.InvoiceID != "" {
		if found, err := s.payOrders.GetByInvoice(lot.InvoiceID); err == nil {
			po = found
			havePO = true
			if po.AmountMinor > 0 {
				amount = po.AmountMinor
			}
		}
	}

	reason := lot.ErrorMessage
	if reason == "" {
		reason = string(lot.Status)
	}

	// Шлюз вызывается до смены статуса: при временной ошибке лот остаётся
	// в статусе отказа и попадает в следующий проход. От повторного
	// возврата защищает сам переход в CANCELLED — отменённый лот в выборку
	// шага больше не попадает.
	if err := s.gateway.Refund(lot.PaymentOrderID, amount, reason); err != nil {
		return fmt.Errorf("refund lot %s: %w", lot.ID, err)
	}
	if s.metrics != nil {
		s.metrics.RecordRefund()
	}

	if havePO {
		po.Status = domain.PaymentOrderStatusRefunded
		if err := s.payOrders.Save(po); err != nil {
			s.logger.WithError(err).WithField("lot_id", lot.ID).Warn("failed to mark payment order refunded")
		}
	}

	if err := lot.TransitionTo(domain.LotStatusCancelled); err != nil {
		return err
	}
	if err := s.lots.Save(lot); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(domain.LotStatusCancelled))
	}

	s.appendHistory(lot.ID, "refunded", reason)
	s.enqueueRefundNotification(lot, amount, reason)
	s.logger.WithFields(log.Fields{
		"lot_id":       lot.ID,
		"amount_minor": amount,
	}).Info("refund issued")
	return nil
}

func (s *Sweeper) appendHistory(lotID, eventType, reason string) {
	if s.history == nil {
		return
	}
	err := s.history.Append(domain.HistoryEvent{
		LotID:    lotID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("lot_id", lotID).Warn("failed to append lot history")
	}
}

func (s *Sweeper) enqueueRefundNotification(lot domain.Lot, amount int64, reason string) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"lot_id":       lot.ID,
		"winner_id":    lot.WinnerID,
		"amount_minor": amount,
		"reason":       reason,
		"ts":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("lot_id", lot.ID).Error("failed to marshal refund payload")
		return
	}
	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "lot",
		AggregateID:   lot.ID,
		EventType:     EventTypeRefunded,
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("lot_id", lot.ID).Warn("failed to enqueue refund notification")
	}
}

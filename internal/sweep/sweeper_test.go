package sweep

import (
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/storage/memory"
)

type stubAuction struct {
	mu     sync.Mutex
	closed []domain.ClosedSale
	err    error
	calls  int
}

func (s *stubAuction) CreateListing(req domain.ListingRequest) (domain.Listing, error) {
	return domain.Listing{}, nil
}

func (s *stubAuction) PublishListing(saleID string) error { return nil }

func (s *stubAuction) QueryClosedSales(since time.Time) ([]domain.ClosedSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.closed, nil
}

type stubGateway struct {
	mu        sync.Mutex
	refundErr error
	refunds   []int64
}

func (s *stubGateway) GetInvoice(invoiceID string) (domain.Invoice, error) {
	return domain.Invoice{}, domain.ErrGatewayTemporary
}

func (s *stubGateway) Refund(paymentOrderID string, amountMinor int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refundErr != nil {
		return s.refundErr
	}
	s.refunds = append(s.refunds, amountMinor)
	return nil
}

func (s *stubGateway) refundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

type stubFulfiller struct {
	mu     sync.Mutex
	err    error
	lotIDs []string
}

func (s *stubFulfiller) Fulfill(lotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.lotIDs = append(s.lotIDs, lotID)
	return nil
}

type panicFulfiller struct{}

func (panicFulfiller) Fulfill(lotID string) error { panic("fulfiller exploded") }

type fixture struct {
	sweeper   *Sweeper
	lots      domain.LotRepository
	payOrders domain.PaymentOrderRepository
	outbox    interface{ AllPending() []domain.OutboxMessage }
	auction   *stubAuction
	gateway   *stubGateway
	fulfiller *stubFulfiller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	lots := memory.NewLotRepository()
	payOrders := memory.NewPaymentOrderRepository()
	outbox := memory.NewOutboxRepository()

	auction := &stubAuction{}
	gateway := &stubGateway{}
	fulfiller := &stubFulfiller{}

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	sweeper := NewSweeper(Config{
		Lots:      lots,
		PayOrders: payOrders,
		Outbox:    outbox,
		History:   memory.NewHistoryRepository(),
		Auction:   auction,
		Gateway:   gateway,
		Fulfiller: fulfiller,
		Logger:    logger.WithField("component", "sweep-test"),
		Staleness: 10 * time.Minute,
	})

	return &fixture{
		sweeper:   sweeper,
		lots:      lots,
		payOrders: payOrders,
		outbox:    outbox,
		auction:   auction,
		gateway:   gateway,
		fulfiller: fulfiller,
	}
}

func seedLot(t *testing.T, lots domain.LotRepository, id string, status domain.LotStatus) domain.Lot {
	t.Helper()

	now := time.Now().UTC()
	lot := domain.Lot{
		ID:                id,
		SupplierProductID: "prod-1",
		SupplierCostMinor: 1500,
		SaleID:            "sale-1",
		AuctionItemID:     "item-" + id,
		ReserveMinor:      1720,
		Status:            status,
		CreatedAt:         now.Add(-time.Hour),
		UpdatedAt:         now.Add(-time.Hour),
	}
	if err := lots.Create(lot); err != nil {
		t.Fatalf("create lot %s: %v", id, err)
	}
	return lot
}

// Опрос закрытых продаж: резерв достигнут — AUCTION_CLOSED с победителем,
// не достигнут — RESERVE_NOT_MET без победителя.
func TestRun_PollClosedSales(t *testing.T) {
	f := newFixture(t)
	won := seedLot(t, f.lots, "lot-won", domain.LotStatusPublished)
	lost := seedLot(t, f.lots, "lot-lost", domain.LotStatusPublished)

	f.auction.closed = []domain.ClosedSale{
		{SaleID: won.SaleID, ItemID: won.AuctionItemID, WinnerID: "buyer-1", HammerMinor: 1900, ReserveMet: true, ClosedAt: time.Now().UTC()},
		{SaleID: lost.SaleID, ItemID: lost.AuctionItemID, HammerMinor: 900, ReserveMet: false, ClosedAt: time.Now().UTC()},
	}

	result := f.sweeper.Run()
	if !result.Poll.OK || result.Poll.Processed != 2 {
		t.Fatalf("poll step: %+v", result.Poll)
	}

	wonLot, _ := f.lots.Get("lot-won")
	if wonLot.Status != domain.LotStatusAuctionClosed {
		t.Fatalf("expected AUCTION_CLOSED, got %s", wonLot.Status)
	}
	if wonLot.WinnerID != "buyer-1" || wonLot.WinningBidMinor != 1900 {
		t.Fatalf("winner not recorded: %+v", wonLot)
	}

	lostLot, _ := f.lots.Get("lot-lost")
	if lostLot.Status != domain.LotStatusReserveNotMet {
		t.Fatalf("expected RESERVE_NOT_MET, got %s", lostLot.Status)
	}
	if lostLot.WinnerID != "" {
		t.Fatalf("loser must have no winner: %+v", lostLot)
	}
}

// Повторный проход по тем же закрытым продажам не перезаписывает победителя.
func TestRun_PollIdempotent(t *testing.T) {
	f := newFixture(t)
	won := seedLot(t, f.lots, "lot-won", domain.LotStatusPublished)
	f.auction.closed = []domain.ClosedSale{
		{SaleID: won.SaleID, ItemID: won.AuctionItemID, WinnerID: "buyer-1", HammerMinor: 1900, ReserveMet: true},
	}

	f.sweeper.Run()

	// Площадка повторяет ту же продажу с другим payload.
	f.auction.closed[0].WinnerID = "buyer-2"
	f.auction.closed[0].HammerMinor = 5000
	f.sweeper.Run()

	lot, _ := f.lots.Get("lot-won")
	if lot.WinnerID != "buyer-1" || lot.WinningBidMinor != 1900 {
		t.Fatalf("winner overwritten on repeat poll: %+v", lot)
	}
}

// Застрявшие PAID-лоты уходят в повтор исполнения; свежие не трогаются.
func TestRun_RetryStuckFulfillment(t *testing.T) {
	f := newFixture(t)
	seedLot(t, f.lots, "lot-stuck", domain.LotStatusPaid)

	freshLot := seedLot(t, f.lots, "lot-fresh", domain.LotStatusPaid)
	got, _ := f.lots.Get(freshLot.ID)
	got.UpdatedAt = time.Now().UTC()
	if err := f.lots.Save(got); err != nil {
		t.Fatalf("touch lot: %v", err)
	}

	result := f.sweeper.Run()
	if !result.Fulfillment.OK || result.Fulfillment.Processed != 1 {
		t.Fatalf("fulfillment step: %+v", result.Fulfillment)
	}
	if len(f.fulfiller.lotIDs) != 1 || f.fulfiller.lotIDs[0] != "lot-stuck" {
		t.Fatalf("unexpected retried lots: %v", f.fulfiller.lotIDs)
	}
}

// Возвраты: неисполнимые лоты закрываются, шлюз получает ровно один Refund,
// уведомление лежит в outbox.
func TestRun_Refunds(t *testing.T) {
	f := newFixture(t)
	lot := seedLot(t, f.lots, "lot-oos", domain.LotStatusCJOutOfStock)

	got, _ := f.lots.Get(lot.ID)
	got.WinnerID = "buyer-1"
	got.WinningBidMinor = 1800
	got.PaymentOrderID = "po-1"
	got.InvoiceID = "inv-1"
	if err := f.lots.Save(got); err != nil {
		t.Fatalf("save lot: %v", err)
	}
	if err := f.payOrders.Create(domain.PaymentOrder{
		ID: "po-1", InvoiceID: "inv-1", SaleID: "sale-1", BuyerID: "buyer-1",
		AmountMinor: 1953, Status: domain.PaymentOrderStatusPaid,
	}); err != nil {
		t.Fatalf("create payment order: %v", err)
	}

	result := f.sweeper.Run()
	if !result.Refunds.OK || result.Refunds.Processed != 1 {
		t.Fatalf("refunds step: %+v", result.Refunds)
	}

	// Возвращается фактически уплаченная сумма, не hammer price.
	if f.gateway.refundCount() != 1 || f.gateway.refunds[0] != 1953 {
		t.Fatalf("unexpected refunds: %v", f.gateway.refunds)
	}

	final, _ := f.lots.Get("lot-oos")
	if final.Status != domain.LotStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", final.Status)
	}
	po, _ := f.payOrders.GetByInvoice("inv-1")
	if po.Status != domain.PaymentOrderStatusRefunded {
		t.Fatalf("expected refunded payment order, got %s", po.Status)
	}

	var sawRefund bool
	for _, msg := range f.outbox.AllPending() {
		if msg.EventType == EventTypeRefunded {
			sawRefund = true
		}
	}
	if !sawRefund {
		t.Fatal("refund notification not enqueued")
	}

	// Повторный проход не делает второй возврат.
	f.sweeper.Run()
	if f.gateway.refundCount() != 1 {
		t.Fatalf("double refund: %v", f.gateway.refunds)
	}
}

// Изоляция шагов: упавший опрос площадки и паника исполнения не мешают возвратам.
func TestRun_StepIsolation(t *testing.T) {
	f := newFixture(t)
	f.auction.err = domain.ErrGatewayTemporary
	f.sweeper.fulfiller = panicFulfiller{}

	lot := seedLot(t, f.lots, "lot-oos", domain.LotStatusCJPriceChanged)
	got, _ := f.lots.Get(lot.ID)
	got.WinningBidMinor = 2100
	if err := f.lots.Save(got); err != nil {
		t.Fatalf("save lot: %v", err)
	}
	seedLot(t, f.lots, "lot-stuck", domain.LotStatusPaid)

	result := f.sweeper.Run()

	if result.Poll.OK || result.Poll.Error == nil {
		t.Fatalf("poll step must fail: %+v", result.Poll)
	}
	if result.Fulfillment.OK || result.Fulfillment.Error == nil {
		t.Fatalf("fulfillment step must capture panic: %+v", result.Fulfillment)
	}
	if !result.Refunds.OK || result.Refunds.Processed != 1 {
		t.Fatalf("refunds step must still run: %+v", result.Refunds)
	}

	final, _ := f.lots.Get("lot-oos")
	if final.Status != domain.LotStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", final.Status)
	}
}

// Временная ошибка шлюза не съедает возврат: лот остаётся в статусе отказа,
// следующий проход выдаёт возврат и закрывает лот.
func TestRun_RefundRetriedAfterTemporaryGatewayError(t *testing.T) {
	f := newFixture(t)
	lot := seedLot(t, f.lots, "lot-oos", domain.LotStatusCJOutOfStock)
	got, _ := f.lots.Get(lot.ID)
	got.WinnerID = "buyer-1"
	got.WinningBidMinor = 1800
	got.PaymentOrderID = "po-1"
	if err := f.lots.Save(got); err != nil {
		t.Fatalf("save lot: %v", err)
	}

	f.gateway.refundErr = domain.ErrGatewayTemporary
	f.sweeper.Run()

	if f.gateway.refundCount() != 0 {
		t.Fatalf("refund must not be counted on gateway error: %v", f.gateway.refunds)
	}
	stuck, _ := f.lots.Get("lot-oos")
	if stuck.Status != domain.LotStatusCJOutOfStock {
		t.Fatalf("lot must stay refundable, got %s", stuck.Status)
	}

	f.gateway.refundErr = nil
	result := f.sweeper.Run()
	if !result.Refunds.OK || result.Refunds.Processed != 1 {
		t.Fatalf("refunds step after recovery: %+v", result.Refunds)
	}
	if f.gateway.refundCount() != 1 {
		t.Fatalf("expected exactly one refund, got %v", f.gateway.refunds)
	}
	final, _ := f.lots.Get("lot-oos")
	if final.Status != domain.LotStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", final.Status)
	}
}

type flakySaveLots struct {
	domain.LotRepository
	failures int
}

func (f *flakySaveLots) Save(lot domain.Lot) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("storage hiccup")
	}
	return f.LotRepository.Save(lot)
}

// Сбой записи при закрытии продажи не теряет её: граница опроса не сдвигается,
// следующий проход получает ту же выборку и закрывает продажу.
func TestRun_PollRetriedAfterSaveFailure(t *testing.T) {
	lots := memory.NewLotRepository()
	auction := &stubAuction{}

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	sweeper := NewSweeper(Config{
		Lots:    &flakySaveLots{LotRepository: lots, failures: 1},
		Auction: auction,
		Logger:  logger.WithField("component", "sweep-test"),
	})

	won := seedLot(t, lots, "lot-won", domain.LotStatusPublished)
	auction.closed = []domain.ClosedSale{
		{SaleID: won.SaleID, ItemID: won.AuctionItemID, WinnerID: "buyer-1", HammerMinor: 1900, ReserveMet: true, ClosedAt: time.Now().UTC()},
	}

	result := sweeper.Run()
	if result.Poll.Processed != 0 {
		t.Fatalf("first pass must not close the sale: %+v", result.Poll)
	}

	result = sweeper.Run()
	if !result.Poll.OK || result.Poll.Processed != 1 {
		t.Fatalf("second pass must close the sale: %+v", result.Poll)
	}
	lot, _ := lots.Get("lot-won")
	if lot.Status != domain.LotStatusAuctionClosed {
		t.Fatalf("expected AUCTION_CLOSED, got %s", lot.Status)
	}
	if lot.WinnerID != "buyer-1" {
		t.Fatalf("winner not recorded: %+v", lot)
	}
}

// Конкурентные проходы (Runner и HTTP-триггер) сериализуются:
// возврат по лоту выдаётся ровно один раз.
func TestRun_ConcurrentPassesSingleRefund(t *testing.T) {
	f := newFixture(t)
	lot := seedLot(t, f.lots, "lot-oos", domain.LotStatusCJOutOfStock)
	got, _ := f.lots.Get(lot.ID)
	got.WinningBidMinor = 1800
	if err := f.lots.Save(got); err != nil {
		t.Fatalf("save lot: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.sweeper.Run()
		}()
	}
	wg.Wait()

	if f.gateway.refundCount() != 1 {
		t.Fatalf("expected exactly one refund, got %v", f.gateway.refunds)
	}
	final, _ := f.lots.Get("lot-oos")
	if final.Status != domain.LotStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", final.Status)
	}
}

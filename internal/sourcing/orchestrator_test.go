package sourcing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/storage/memory"
)

type stubSupplier struct {
	products []domain.CatalogProduct
	err      error
	lastQ    domain.CatalogQuery
}

func (s *stubSupplier) QueryProducts(query domain.CatalogQuery) ([]domain.CatalogProduct, error) {
	s.lastQ = query
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

func (s *stubSupplier) PlaceOrder(req domain.SupplierOrderRequest) (domain.SupplierOrder, error) {
	return domain.SupplierOrder{}, domain.ErrSupplierTemporary
}

type stubAuction struct {
	mu         sync.Mutex
	createErr  error
	publishErr error
	created    int
	published  []string
	failOn     string // product, для которого CreateListing падает
	lastReq    domain.ListingRequest
}

func (s *stubAuction) CreateListing(req domain.ListingRequest) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.Listing{}, s.createErr
	}
	if s.failOn != "" && req.Title == s.failOn {
		return domain.Listing{}, fmt.Errorf("listing rejected for %s", req.Title)
	}
	s.created++
	s.lastReq = req
	return domain.Listing{
		SaleID: fmt.Sprintf("sale-%d", s.created),
		ItemID: fmt.Sprintf("item-%d", s.created),
	}, nil
}

func (s *stubAuction) PublishListing(saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, saleID)
	return nil
}

func (s *stubAuction) QueryClosedSales(since time.Time) ([]domain.ClosedSale, error) {
	return nil, nil
}

func product(id string, costMinor int64) domain.CatalogProduct {
	return domain.CatalogProduct{
		ProductID:     id,
		VariantID:     id + "-v1",
		Name:          "product " + id,
		CostMinor:     costMinor,
		ShippingMinor: 500,
		Carrier:       "yunexpress",
		OriginCountry: "CN",
	}
}

func newOrchestrator(t *testing.T, lots domain.LotRepository, supplier *stubSupplier, auction *stubAuction, quota int) *Orchestrator {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return NewOrchestrator(Config{
		Lots:     lots,
		History:  memory.NewHistoryRepository(),
		Supplier: supplier,
		Auction:  auction,
		Logger:   logger.WithField("component", "sourcing-test"),
		Quota:    quota,
	})
}

func TestRun_PublishesLots(t *testing.T) {
	lots := memory.NewLotRepository()
	supplier := &stubSupplier{products: []domain.CatalogProduct{product("p1", 1000), product("p2", 2000)}}
	auction := &stubAuction{}

	o := newOrchestrator(t, lots, supplier, auction, 10)

	published, err := o.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if len(auction.published) != 2 {
		t.Fatalf("expected 2 listings published, got %d", len(auction.published))
	}

	lot, err := lots.GetByAuctionItem("sale-1", "item-1")
	if err != nil {
		t.Fatalf("lookup published lot: %v", err)
	}
	if lot.Status != domain.LotStatusPublished {
		t.Fatalf("expected PUBLISHED, got %s", lot.Status)
	}
	if lot.ReserveMinor <= lot.SupplierCostMinor {
		t.Fatalf("reserve %d must exceed cost %d", lot.ReserveMinor, lot.SupplierCostMinor)
	}
	if lot.StartBidMinor < 1 || lot.StartBidMinor%50 == 0 {
		t.Fatalf("bad start bid %d", lot.StartBidMinor)
	}
}

// Квота: занятые слоты уменьшают выборку, при заполненной квоте закупка не идёт.
func TestRun_RespectsQuota(t *testing.T) {
	lots := memory.NewLotRepository()
	supplier := &stubSupplier{products: []domain.CatalogProduct{product("p1", 1000), product("p2", 2000), product("p3", 700)}}
	auction := &stubAuction{}

	o := newOrchestrator(t, lots, supplier, auction, 2)

	published, err := o.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected quota-capped 2, got %d", published)
	}
	if supplier.lastQ.Limit != 2 {
		t.Fatalf("expected query limit 2, got %d", supplier.lastQ.Limit)
	}

	// Квота заполнена: следующий цикл ничего не закупает.
	published, err = o.Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected 0 on full quota, got %d", published)
	}
}

// Ошибка по одному товару не прерывает закупку остальных.
func TestRun_SkipsFailedProduct(t *testing.T) {
	lots := memory.NewLotRepository()
	supplier := &stubSupplier{products: []domain.CatalogProduct{product("p1", 1000), product("p2", 2000)}}
	auction := &stubAuction{failOn: "product p1"}

	o := newOrchestrator(t, lots, supplier, auction, 10)

	published, err := o.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected 1 published, got %d", published)
	}
}

func TestRun_SupplierErrorPropagates(t *testing.T) {
	lots := memory.NewLotRepository()
	supplier := &stubSupplier{err: domain.ErrSupplierTemporary}
	o := newOrchestrator(t, lots, supplier, &stubAuction{}, 10)

	if _, err := o.Run(); err == nil {
		t.Fatal("expected supplier error to propagate")
	}
}

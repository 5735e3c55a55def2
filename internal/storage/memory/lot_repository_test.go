package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

func newLot(id string, status domain.LotStatus) domain.Lot {
	now := time.Now().UTC()
	return domain.Lot{
		ID:                id,
		SupplierProductID: "prod-1",
		SupplierCostMinor: 1000,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestLotRepository_CreateAndGet(t *testing.T) {
	repo := NewLotRepository()

	if err := repo.Create(newLot("lot-1", domain.LotStatusSourced)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(newLot("lot-1", domain.LotStatusSourced)); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	lot, err := repo.Get("lot-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lot.Status != domain.LotStatusSourced {
		t.Fatalf("unexpected status %s", lot.Status)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrLotNotFound) {
		t.Fatalf("expected ErrLotNotFound, got %v", err)
	}
}

// Конфликт версий: сохранение со stale-версией отклоняется и не затирает
// изменения конкурентной записи.
func TestLotRepository_SaveVersionConflict(t *testing.T) {
	repo := NewLotRepository()
	if err := repo.Create(newLot("lot-1", domain.LotStatusPaid)); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.Get("lot-1")
	second, _ := repo.Get("lot-1")

	first.ErrorMessage = "writer A"
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.ErrorMessage = "writer B"
	if err := repo.Save(second); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	current, _ := repo.Get("lot-1")
	if current.ErrorMessage != "writer A" {
		t.Fatalf("conflicting write overwrote data: %q", current.ErrorMessage)
	}
	if current.Version != 1 {
		t.Fatalf("expected version 1, got %d", current.Version)
	}
}

func TestLotRepository_Lookups(t *testing.T) {
	repo := NewLotRepository()

	lot := newLot("lot-1", domain.LotStatusAuctionClosed)
	lot.SaleID = "sale-1"
	lot.AuctionItemID = "item-1"
	lot.PaymentOrderID = "po-1"
	lot.SupplierOrderID = "cj-1"
	if err := repo.Create(lot); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got, err := repo.GetByAuctionItem("sale-1", "item-1"); err != nil || got.ID != "lot-1" {
		t.Fatalf("by auction item: %v %v", got.ID, err)
	}
	if got, err := repo.GetByPaymentOrder("po-1"); err != nil || got.ID != "lot-1" {
		t.Fatalf("by payment order: %v %v", got.ID, err)
	}
	if got, err := repo.GetBySupplierOrder("cj-1"); err != nil || got.ID != "lot-1" {
		t.Fatalf("by supplier order: %v %v", got.ID, err)
	}
	// Пустой идентификатор не должен матчить лоты с незаполненным полем.
	if _, err := repo.GetByPaymentOrder(""); !errors.Is(err, domain.ErrLotNotFound) {
		t.Fatalf("expected ErrLotNotFound for empty id, got %v", err)
	}

	lots, err := repo.ListBySale("sale-1", domain.LotStatusAuctionClosed)
	if err != nil || len(lots) != 1 {
		t.Fatalf("list by sale: %v %v", lots, err)
	}
}

func TestLotRepository_ListStuckAndCountActive(t *testing.T) {
	repo := NewLotRepository()

	stale := newLot("lot-old", domain.LotStatusPaid)
	stale.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	fresh := newLot("lot-new", domain.LotStatusPaid)
	done := newLot("lot-done", domain.LotStatusDelivered)

	for _, l := range []domain.Lot{stale, fresh, done} {
		if err := repo.Create(l); err != nil {
			t.Fatalf("create %s: %v", l.ID, err)
		}
	}

	stuck, err := repo.ListStuck(domain.LotStatusPaid, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "lot-old" {
		t.Fatalf("expected only stale lot, got %v", stuck)
	}

	active, err := repo.CountActive()
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 2 {
		t.Fatalf("expected 2 active lots, got %d", active)
	}
}

// Package sourcing закупает товары у поставщика и выставляет их на аукцион:
// выбор кандидатов, расчёт цен и проводка лота SOURCED → LISTED → PUBLISHED.
package sourcing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/metrics"
	"github.com/vladislavdragonenkov/dropship/internal/pricing"
)

const defaultQuota = 50

// Config собирает зависимости и параметры закупочного оркестратора.
type Config struct {
	Lots    domain.LotRepository
	History domain.HistoryRepository

	Supplier domain.SupplierService
	Auction  domain.AuctionPlatform

	Logger  *log.Entry
	Metrics *metrics.PipelineMetrics

	// Quota — максимум активных (нетерминальных) лотов в пайплайне.
	Quota int
	Query domain.CatalogQuery
	Fees  pricing.FeeSchedule
}

// Orchestrator наполняет пайплайн новыми лотами до квоты.
type Orchestrator struct {
	lots    domain.LotRepository
	history domain.HistoryRepository

	supplier domain.SupplierService
	auction  domain.AuctionPlatform

	logger  *log.Entry
	metrics *metrics.PipelineMetrics

	quota int
	query domain.CatalogQuery
	fees  pricing.FeeSchedule
}

// NewOrchestrator создаёт оркестратор с параметрами по умолчанию для
// незаполненных полей конфигурации.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "sourcing")
	}
	quota := cfg.Quota
	if quota <= 0 {
		quota = defaultQuota
	}
	fees := cfg.Fees
	if fees == (pricing.FeeSchedule{}) {
		fees = pricing.DefaultFees()
	}
	return &Orchestrator{
		lots:     cfg.Lots,
		history:  cfg.History,
		supplier: cfg.Supplier,
		auction:  cfg.Auction,
		logger:   logger,
		metrics:  cfg.Metrics,
		quota:    quota,
		query:    cfg.Query,
		fees:     fees,
	}
}

// Run выполняет один цикл закупки и возвращает число опубликованных лотов.
// Ошибка по одному товару не прерывает обработку остальных.
func (o *Orchestrator) Run() (int, error) {
	active, err := o.lots.CountActive()
	if err != nil {
		return 0, fmt.Errorf("count active lots: %w", err)
	}
	slots := o.quota - active
	if slots <= 0 {
		o.logger.WithFields(log.Fields{
			"active": active,
			"quota":  o.quota,
		}).Debug("sourcing quota reached, skipping run")
		return 0, nil
	}

	query := o.query
	query.Limit = slots
	products, err := o.supplier.QueryProducts(query)
	if err != nil {
		return 0, fmt.Errorf("query supplier catalog: %w", err)
	}

	published := 0
	for _, product := range products {
		if published >= slots {
			break
		}
		if err := o.sourceOne(product); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"product_id": product.ProductID,
				"variant_id": product.VariantID,
			}).Warn("failed to source product")
			continue
		}
		published++
	}

	if o.metrics != nil && published > 0 {
		o.metrics.RecordLotsSourced(published)
	}
	o.logger.WithFields(log.Fields{
		"published": published,
		"active":    active,
	}).Info("sourcing run finished")
	return published, nil
}

// sourceOne проводит один товар через создание лота, расчёт цен и публикацию.
func (o *Orchestrator) sourceOne(product domain.CatalogProduct) error {
	quote, err := pricing.Compute(pricing.Input{
		ProductCostMinor:  product.CostMinor,
		ShippingCostMinor: product.ShippingMinor,
		RetailMinor:       product.RetailMinor,
		Fees:              o.fees,
	})
	if err != nil {
		return fmt.Errorf("price product %s: %w", product.ProductID, err)
	}

	now := time.Now().UTC()
	lot := domain.Lot{
		ID:                uuid.NewString(),
		SupplierProductID: product.ProductID,
		SupplierVariantID: product.VariantID,
		SupplierCostMinor: quote.TotalCostMinor,
		SupplierCarrier:   product.Carrier,
		OriginCountry:     product.OriginCountry,
		ImageURLs:         product.ImageURLs,
		StartBidMinor:     quote.StartBidMinor,
		ReserveMinor:      quote.ReserveMinor,
		TotalCostMinor:    quote.TotalCostMinor,
		Status:            domain.LotStatusSourced,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.lots.Create(lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	o.appendHistory(lot.ID, "sourced", product.ProductID)

	listing, err := o.auction.CreateListing(domain.ListingRequest{
		LotID:         lot.ID,
		Title:         product.Name,
		StartBidMinor: quote.StartBidMinor,
		ReserveMinor:  quote.ReserveMinor,
		ImageURLs:     product.ImageURLs,
	})
	if err != nil {
		return fmt.Errorf("create listing for lot %s: %w", lot.ID, err)
	}

	if err := lot.TransitionTo(domain.LotStatusListed); err != nil {
		return err
	}
	lot.SaleID = listing.SaleID
	lot.AuctionItemID = listing.ItemID
	if err := o.lots.Save(lot); err != nil {
		return fmt.Errorf("save listed lot %s: %w", lot.ID, err)
	}
	o.recordTransition(domain.LotStatusListed)

	if err := o.auction.PublishListing(listing.SaleID); err != nil {
		return fmt.Errorf("publish listing for lot %s: %w", lot.ID, err)
	}

	// Save инкрементирует версию в хранилище, перечитываем перед вторым сохранением.
	lot, err = o.lots.Get(lot.ID)
	if err != nil {
		return err
	}
	if err := lot.TransitionTo(domain.LotStatusPublished); err != nil {
		return err
	}
	if err := o.lots.Save(lot); err != nil {
		return fmt.Errorf("save published lot %s: %w", lot.ID, err)
	}
	o.recordTransition(domain.LotStatusPublished)
	o.appendHistory(lot.ID, "published", listing.SaleID)

	o.logger.WithFields(log.Fields{
		"lot_id":    lot.ID,
		"sale_id":   listing.SaleID,
		"start_bid": quote.StartBidMinor,
		"reserve":   quote.ReserveMinor,
	}).Info("lot published")
	return nil
}

func (o *Orchestrator) recordTransition(to domain.LotStatus) {
	if o.metrics != nil {
		o.metrics.RecordTransition(string(to))
	}
}

func (o *Orchestrator) appendHistory(lotID, eventType, reason string) {
	if o.history == nil {
		return
	}
	err := o.history.Append(domain.HistoryEvent{
		LotID:    lotID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	})
	if err != nil {
		o.logger.WithError(err).WithField("lot_id", lotID).Warn("failed to append lot history")
	}
}

package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/dropship/internal/metrics"
	"github.com/vladislavdragonenkov/dropship/internal/service/alert"
	"github.com/vladislavdragonenkov/dropship/internal/service/auction"
	"github.com/vladislavdragonenkov/dropship/internal/service/buyer"
	"github.com/vladislavdragonenkov/dropship/internal/service/payment"
	"github.com/vladislavdragonenkov/dropship/internal/service/supplier"
	"github.com/vladislavdragonenkov/dropship/internal/storage/memory"
	"github.com/vladislavdragonenkov/dropship/internal/storage/postgres"
)

// Dependencies содержит все зависимости сервиса.
// NOTE: supplier/payment/auction адаптеры — mock'и; в production они
// заменяются клиентами реальных API с теми же интерфейсами.
type Dependencies struct {
	Lots      domain.LotRepository
	Events    domain.ProcessedEventRepository
	PayOrders domain.PaymentOrderRepository
	Outbox    domain.OutboxRepository
	History   domain.HistoryRepository

	Supplier domain.SupplierService
	Gateway  domain.PaymentGateway
	Auction  domain.AuctionPlatform
	Buyers   domain.BuyerDirectory
	Alerts   domain.Alerter

	Metrics *metrics.PipelineMetrics
	Logger  *log.Entry

	// Store не nil только при работе на PostgreSQL.
	Store *postgres.Store
	// Producer не nil только при настроенном Kafka.
	Producer     *kafka.Producer
	Publisher    domain.OutboxPublisher
	DLQPublisher domain.OutboxPublisher
}

// NewDependencies собирает зависимости по конфигурации: PostgreSQL при
// заданном DSN (с прогоном миграций), иначе in-memory; Kafka при заданных
// брокерах, иначе outbox копится без публикации.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Metrics: metrics.NewPipelineMetrics(),
		Logger:  logger,
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}

		deps.Store = store
		deps.Lots = postgres.NewLotRepository(store)
		deps.Events = postgres.NewProcessedEventRepository(store)
		deps.PayOrders = postgres.NewPaymentOrderRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.History = postgres.NewHistoryRepository(store)
		logger.Info("storage: postgresql")
	} else {
		deps.Lots = memory.NewLotRepository()
		deps.Events = memory.NewProcessedEventRepository()
		deps.PayOrders = memory.NewPaymentOrderRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.History = memory.NewHistoryRepository()
		logger.Info("storage: in-memory")
	}

	deps.Supplier = supplier.NewMockService()
	deps.Gateway = payment.NewMockGateway()
	deps.Auction = auction.NewMockPlatform()
	deps.Buyers = buyer.NewMockDirectory()
	deps.Alerts = alert.NewOutboxAlerter(deps.Outbox, logger.WithField("component", "alerter"))

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			deps.Producer = producer
			deps.Publisher = kafka.NewOutboxPublisher(producer, kafka.TopicNotifications)
			deps.DLQPublisher = kafka.NewDLQPublisher(producer)
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	return deps, nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

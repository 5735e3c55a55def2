// Package app собирает сервис из частей: конфигурация из окружения,
// выбор хранилища, фоновые воркеры и HTTP-слой.
package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/pricing"
)

// Config описывает настройки запуска сервиса. Все значения читаются из
// переменных окружения; .env подхватывается, если присутствует.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// PostgresDSN пустой — сервис работает на in-memory хранилище (dev/demo).
	PostgresDSN string `env:"POSTGRES_DSN"`

	// KafkaBrokers пустой — outbox-воркер выключен, уведомления копятся в outbox.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	PaymentWebhookSecret  string `env:"PAYMENT_WEBHOOK_SECRET"`
	SupplierWebhookSecret string `env:"SUPPLIER_WEBHOOK_SECRET"`
	SweepSecret           string `env:"SWEEP_SECRET"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepStaleness time.Duration `env:"SWEEP_STALENESS" envDefault:"30m"`
	LedgerTTL      time.Duration `env:"LEDGER_TTL" envDefault:"720h"`

	// SourcingInterval <= 0 выключает периодическую закупку.
	SourcingInterval     time.Duration `env:"SOURCING_INTERVAL" envDefault:"1h"`
	SourcingQuota        int           `env:"SOURCING_QUOTA" envDefault:"50"`
	SourcingKeyword      string        `env:"SOURCING_KEYWORD" envDefault:"gadgets"`
	SourcingMaxCostMinor int64         `env:"SOURCING_MAX_COST_MINOR" envDefault:"2500"`

	FeeBuyerPremium        float64 `env:"FEE_BUYER_PREMIUM" envDefault:"0.15"`
	FeeProcessorPct        float64 `env:"FEE_PROCESSOR_PCT" envDefault:"0.029"`
	FeeProcessorFixedMinor int64   `env:"FEE_PROCESSOR_FIXED_MINOR" envDefault:"30"`
	FeeFluctuationBuffer   float64 `env:"FEE_FLUCTUATION_BUFFER" envDefault:"0.20"`
	FeeSafetyMargin        float64 `env:"FEE_SAFETY_MARGIN" envDefault:"0.05"`
}

// LoadConfig читает конфигурацию из окружения и необязательного .env.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}
	return cfg, nil
}

// Fees собирает тарифную сетку ценообразования из конфигурации.
func (c Config) Fees() pricing.FeeSchedule {
	return pricing.FeeSchedule{
		BuyerPremium:        c.FeeBuyerPremium,
		ProcessorPct:        c.FeeProcessorPct,
		ProcessorFixedMinor: c.FeeProcessorFixedMinor,
		FluctuationBuffer:   c.FeeFluctuationBuffer,
		SafetyMargin:        c.FeeSafetyMargin,
	}
}

// CatalogQuery собирает запрос закупки из конфигурации.
func (c Config) CatalogQuery() domain.CatalogQuery {
	return domain.CatalogQuery{
		Keyword:      c.SourcingKeyword,
		MaxCostMinor: c.SourcingMaxCostMinor,
	}
}

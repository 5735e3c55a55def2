// Package http принимает внешние триггеры пайплайна: подписанные webhook'и
// платёжного провайдера, аутентифицированные webhook'и поставщика и
// принудительный запуск sweep. Сюда же подключены health-пробы и /metrics.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/health"
	"github.com/vladislavdragonenkov/dropship/internal/reconcile"
	"github.com/vladislavdragonenkov/dropship/internal/sweep"
)

// maxBodyBytes ограничивает размер webhook-payload.
const maxBodyBytes = 1 << 20

// EventDispatcher обрабатывает внешние события пайплайна.
type EventDispatcher interface {
	HandlePaymentEvent(e reconcile.PaymentEvent) error
	HandleSupplierEvent(e reconcile.SupplierEvent) error
}

// SweepRunner выполняет один проход sweep.
type SweepRunner interface {
	Run() sweep.Result
}

// Config собирает зависимости и секреты HTTP-слоя.
type Config struct {
	Dispatcher EventDispatcher
	Sweeper    SweepRunner
	Health     *health.Handler
	Logger     *log.Entry

	// PaymentSecret подписывает payload платёжного провайдера (HMAC-SHA256).
	PaymentSecret string
	// SupplierSecret принимается как shared-secret заголовок или bearer-токен.
	SupplierSecret string
	// SweepSecret защищает ручной запуск sweep.
	SweepSecret string

	SignatureTolerance time.Duration
}

// Server — HTTP-слой сервиса.
type Server struct {
	dispatcher EventDispatcher
	sweeper    SweepRunner
	health     *health.Handler
	logger     *log.Entry

	paymentSecret  string
	supplierSecret string
	sweepSecret    string
	tolerance      time.Duration

	now func() time.Time
}

// NewServer создаёт HTTP-слой.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	tolerance := cfg.SignatureTolerance
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}

	return &Server{
		dispatcher:     cfg.Dispatcher,
		sweeper:        cfg.Sweeper,
		health:         cfg.Health,
		logger:         logger,
		paymentSecret:  cfg.PaymentSecret,
		supplierSecret: cfg.SupplierSecret,
		sweepSecret:    cfg.SweepSecret,
		tolerance:      tolerance,
		now:            time.Now,
	}
}

// Router собирает chi-роутер сервиса.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health.LivenessHandler)
	if s.health != nil {
		r.Get("/readyz", s.health.ReadinessHandler)
		r.Method(http.MethodGet, "/health", s.health)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/payment", s.handlePaymentWebhook)
		r.Post("/webhooks/supplier", s.handleSupplierWebhook)
		r.Post("/sweep", s.handleSweep)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

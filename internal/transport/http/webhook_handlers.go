package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
	"github.com/vladislavdragonenkov/dropship/internal/reconcile"
)

// paymentSignatureHeader несёт подпись payload платёжного провайдера.
const paymentSignatureHeader = "X-Payment-Signature"

// supplierSecretHeader — shared-secret заголовок webhook'ов поставщика.
const supplierSecretHeader = "X-Webhook-Secret"

type paymentWebhookPayload struct {
	ID          string                  `json:"id"`
	Type        string                  `json:"type"`
	InvoiceID   string                  `json:"invoice_id"`
	SaleID      string                  `json:"sale_id"`
	BuyerID     string                  `json:"buyer_id"`
	AmountMinor int64                   `json:"amount_minor"`
	Lines       []paymentWebhookLine    `json:"lines"`
	Shipping    *domain.ShippingAddress `json:"shipping"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

type paymentWebhookLine struct {
	LotID string `json:"lot_id"`
}

type supplierWebhookPayload struct {
	EventID         string    `json:"event_id"`
	OrderID         string    `json:"order_id"`
	OrderStatus     string    `json:"order_status"`
	TrackingNumber  string    `json:"tracking_number"`
	TrackingCarrier string    `json:"carrier"`
	Delivered       bool      `json:"delivered"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// handlePaymentWebhook проверяет подпись ДО каких-либо побочных эффектов:
// невалидная подпись — 400 без изменения состояния.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if s.paymentSecret == "" {
		s.writeError(w, http.StatusBadRequest, "signature verification is not configured")
		return
	}

	sigErr := verifyPaymentSignature(
		r.Header.Get(paymentSignatureHeader),
		[]byte(s.paymentSecret), body,
		s.now().UTC(), s.tolerance,
	)
	if sigErr != nil {
		s.logger.WithError(sigErr).Warn("payment webhook rejected: bad signature")
		s.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if payload.Type == "" || payload.InvoiceID == "" {
		s.writeError(w, http.StatusBadRequest, "type and invoice_id are required")
		return
	}

	event := reconcile.PaymentEvent{
		ID:          payload.ID,
		Type:        payload.Type,
		InvoiceID:   payload.InvoiceID,
		SaleID:      payload.SaleID,
		BuyerID:     payload.BuyerID,
		AmountMinor: payload.AmountMinor,
		OccurredAt:  payload.OccurredAt,
	}
	for _, line := range payload.Lines {
		if line.LotID != "" {
			event.LotIDs = append(event.LotIDs, line.LotID)
		}
	}
	if payload.Shipping != nil {
		event.Shipping = *payload.Shipping
		event.HasShipping = true
	}

	if err := s.dispatcher.HandlePaymentEvent(event); err != nil {
		s.logger.WithError(err).WithField("event_id", payload.ID).Error("payment webhook processing failed")
		s.writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSupplierWebhook(w http.ResponseWriter, r *http.Request) {
	if !supplierAuthorized(r.Header.Get(supplierSecretHeader), r.Header.Get("Authorization"), s.supplierSecret) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var payload supplierWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if payload.OrderID == "" {
		s.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	event := reconcile.SupplierEvent{
		EventID:         payload.EventID,
		OrderID:         payload.OrderID,
		OrderStatus:     payload.OrderStatus,
		TrackingNumber:  payload.TrackingNumber,
		TrackingCarrier: payload.TrackingCarrier,
		Delivered:       payload.Delivered,
		OccurredAt:      payload.OccurredAt,
	}

	if err := s.dispatcher.HandleSupplierEvent(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_id": payload.EventID,
			"order_id": payload.OrderID,
		}).Error("supplier webhook processing failed")
		s.writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

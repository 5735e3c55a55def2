package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/reconcile"
	"github.com/vladislavdragonenkov/dropship/internal/sweep"
)

type stubDispatcher struct {
	paymentEvents  []reconcile.PaymentEvent
	supplierEvents []reconcile.SupplierEvent
	paymentErr     error
	supplierErr    error
}

func (s *stubDispatcher) HandlePaymentEvent(e reconcile.PaymentEvent) error {
	s.paymentEvents = append(s.paymentEvents, e)
	return s.paymentErr
}

func (s *stubDispatcher) HandleSupplierEvent(e reconcile.SupplierEvent) error {
	s.supplierEvents = append(s.supplierEvents, e)
	return s.supplierErr
}

type stubSweeper struct {
	runs   int
	result sweep.Result
}

func (s *stubSweeper) Run() sweep.Result {
	s.runs++
	return s.result
}

func newTestServer(t *testing.T) (*Server, *stubDispatcher, *stubSweeper) {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	dispatcher := &stubDispatcher{}
	sweeper := &stubSweeper{
		result: sweep.Result{
			Poll:        sweep.StepResult{OK: true, Processed: 2},
			Fulfillment: sweep.StepResult{OK: true},
			Refunds:     sweep.StepResult{Error: errors.New("gateway down")},
		},
	}

	srv := NewServer(Config{
		Dispatcher:     dispatcher,
		Sweeper:        sweeper,
		Logger:         log.NewEntry(logger),
		PaymentSecret:  "pay-secret",
		SupplierSecret: "supplier-secret",
		SweepSecret:    "sweep-secret",
	})
	return srv, dispatcher, sweeper
}

func postSigned(t *testing.T, router http.Handler, path, secret string, body []byte, at time.Time) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(paymentSignatureHeader, signPaymentPayload([]byte(secret), body, at))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook_Accepted(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(map[string]any{
		"id":           "evt-1",
		"type":         "invoice.paid",
		"invoice_id":   "inv-1",
		"sale_id":      "sale-1",
		"buyer_id":     "buyer-1",
		"amount_minor": 1900,
		"lines":        []map[string]string{{"lot_id": "lot-1"}},
		"shipping": map[string]string{
			"name": "Test Buyer", "line1": "1 Main St", "city": "Springfield",
			"state": "IL", "postal_code": "12345", "country": "US",
		},
	})

	rec := postSigned(t, router, "/v1/webhooks/payment", "pay-secret", body, time.Now())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	if len(dispatcher.paymentEvents) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(dispatcher.paymentEvents))
	}
	event := dispatcher.paymentEvents[0]
	if event.InvoiceID != "inv-1" || event.AmountMinor != 1900 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(event.LotIDs) != 1 || event.LotIDs[0] != "lot-1" {
		t.Fatalf("lot ids not extracted: %+v", event.LotIDs)
	}
	if !event.HasShipping || event.Shipping.City != "Springfield" {
		t.Fatalf("shipping not extracted: %+v", event.Shipping)
	}
}

func TestPaymentWebhook_BadSignatureNoSideEffects(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	router := srv.Router()

	body := []byte(`{"id":"evt-1","type":"invoice.paid","invoice_id":"inv-1"}`)

	rec := postSigned(t, router, "/v1/webhooks/payment", "wrong-secret", body, time.Now())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(dispatcher.paymentEvents) != 0 {
		t.Fatal("dispatcher must not be called on bad signature")
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
}

func TestPaymentWebhook_StaleSignature(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	router := srv.Router()

	body := []byte(`{"id":"evt-1","type":"invoice.paid","invoice_id":"inv-1"}`)

	rec := postSigned(t, router, "/v1/webhooks/payment", "pay-secret", body, time.Now().Add(-time.Hour))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for stale signature, got %d", rec.Code)
	}
	if len(dispatcher.paymentEvents) != 0 {
		t.Fatal("dispatcher must not be called on stale signature")
	}
}

func TestPaymentWebhook_DispatchError(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	dispatcher.paymentErr = errors.New("storage down")
	router := srv.Router()

	body := []byte(`{"id":"evt-1","type":"invoice.paid","invoice_id":"inv-1"}`)

	rec := postSigned(t, router, "/v1/webhooks/payment", "pay-secret", body, time.Now())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSupplierWebhook_SharedSecretAndBearer(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	router := srv.Router()

	body := []byte(`{"event_id":"sup-1","order_id":"cj-1","order_status":"SHIPPED","tracking_number":"TRK1"}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/supplier", bytes.NewReader(body))
	req.Header.Set(supplierSecretHeader, "supplier-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("shared secret auth failed: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/supplier", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer supplier-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth failed: %d", rec.Code)
	}

	if len(dispatcher.supplierEvents) != 2 {
		t.Fatalf("expected 2 dispatched events, got %d", len(dispatcher.supplierEvents))
	}
	if dispatcher.supplierEvents[0].OrderID != "cj-1" || dispatcher.supplierEvents[0].TrackingNumber != "TRK1" {
		t.Fatalf("unexpected event: %+v", dispatcher.supplierEvents[0])
	}
}

func TestSupplierWebhook_Unauthorized(t *testing.T) {
	srv, dispatcher, _ := newTestServer(t)
	router := srv.Router()

	body := []byte(`{"event_id":"sup-1","order_id":"cj-1"}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/supplier", bytes.NewReader(body))
	req.Header.Set(supplierSecretHeader, "wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(dispatcher.supplierEvents) != 0 {
		t.Fatal("dispatcher must not be called when unauthorized")
	}
}

func TestSupplierWebhook_MissingOrderID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/supplier", bytes.NewReader([]byte(`{"event_id":"sup-1"}`)))
	req.Header.Set(supplierSecretHeader, "supplier-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	srv, _, sweeper := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if sweeper.runs != 0 {
		t.Fatal("sweep must not run without auth")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/sweep", nil)
	req.Header.Set("Authorization", "Bearer sweep-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sweeper.runs != 1 {
		t.Fatalf("expected 1 sweep run, got %d", sweeper.runs)
	}

	var resp sweepResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Poll.OK || resp.Poll.Processed != 2 {
		t.Fatalf("unexpected poll step: %+v", resp.Poll)
	}
	if resp.Refunds.OK || resp.Refunds.Error != "gateway down" {
		t.Fatalf("unexpected refunds step: %+v", resp.Refunds)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

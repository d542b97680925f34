package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/orders"
	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type testOrdersService struct {
	confirmFn func(ctx context.Context, input orders.PaymentResult) (*models.Order, error)
	failFn    func(ctx context.Context, orderID uuid.UUID, reason string) error
}

func (s *testOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	return nil, nil
}

func (s *testOrdersService) ConfirmPayment(ctx context.Context, input orders.PaymentResult) (*models.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, input)
	}
	return &models.Order{ID: input.OrderID}, nil
}

func (s *testOrdersService) HandlePaymentFailure(ctx context.Context, orderID uuid.UUID, reason string) error {
	if s.failFn != nil {
		return s.failFn(ctx, orderID, reason)
	}
	return nil
}

func (s *testOrdersService) Cancel(ctx context.Context, orderID, userID uuid.UUID) error { return nil }

func (s *testOrdersService) Refund(ctx context.Context, input orders.RefundInput) (*models.Order, error) {
	return nil, nil
}

func (s *testOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (s *testOrdersService) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (s *testOrdersService) ExpireBatch(ctx context.Context, limit int) (int, error) { return 0, nil }

func (s *testOrdersService) SetFreedNotifier(n holds.FreedNotifier) {}

type testGuard struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func newTestGuard() *testGuard {
	return &testGuard{seen: map[uuid.UUID]bool{}}
}

func (g *testGuard) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *testGuard) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func webhookRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
}

func TestPaymentWebhookConfirmsOrder(t *testing.T) {
	orderID := uuid.New()
	eventID := uuid.New()

	var got orders.PaymentResult
	svc := &testOrdersService{
		confirmFn: func(ctx context.Context, input orders.PaymentResult) (*models.Order, error) {
			got = input
			return &models.Order{ID: input.OrderID}, nil
		},
	}

	body := `{"event_id":"` + eventID.String() + `","type":"payment.succeeded","order_id":"` + orderID.String() + `","amount":"120.50","provider_ref":"ch_123"}`
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, newTestGuard(), testLogger())(resp, webhookRequest(body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.OrderID != orderID {
		t.Fatalf("unexpected order %s", got.OrderID)
	}
	if !got.Amount.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
	if got.ProviderRef != "ch_123" {
		t.Fatalf("unexpected provider ref %s", got.ProviderRef)
	}
}

func TestPaymentWebhookDedupesRedelivery(t *testing.T) {
	orderID := uuid.New()
	eventID := uuid.New()
	calls := 0
	svc := &testOrdersService{
		confirmFn: func(ctx context.Context, input orders.PaymentResult) (*models.Order, error) {
			calls++
			return &models.Order{ID: input.OrderID}, nil
		},
	}
	guard := newTestGuard()
	handler := PaymentWebhook(svc, guard, testLogger())

	body := `{"event_id":"` + eventID.String() + `","type":"payment.succeeded","order_id":"` + orderID.String() + `","amount":"10"}`
	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler(resp, webhookRequest(body))
		if resp.Code != http.StatusOK {
			t.Fatalf("delivery %d: unexpected status %d", i, resp.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("expected one confirmation, got %d", calls)
	}
}

func TestPaymentWebhookReleasesMarkerOnFailure(t *testing.T) {
	eventID := uuid.New()
	svc := &testOrdersService{
		confirmFn: func(ctx context.Context, input orders.PaymentResult) (*models.Order, error) {
			return nil, errors.New("db down")
		},
	}
	guard := newTestGuard()

	body := `{"event_id":"` + eventID.String() + `","type":"payment.succeeded","order_id":"` + uuid.NewString() + `","amount":"10"}`
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, guard, testLogger())(resp, webhookRequest(body))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != eventID {
		t.Fatalf("expected marker released for %s, got %v", eventID, guard.deleted)
	}
}

func TestPaymentWebhookRoutesFailureEvents(t *testing.T) {
	orderID := uuid.New()
	var gotReason string
	svc := &testOrdersService{
		failFn: func(ctx context.Context, id uuid.UUID, reason string) error {
			if id != orderID {
				t.Fatalf("unexpected order %s", id)
			}
			gotReason = reason
			return nil
		},
	}

	body := `{"event_id":"` + uuid.NewString() + `","type":"payment.failed","order_id":"` + orderID.String() + `","reason":"card_declined"}`
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, newTestGuard(), testLogger())(resp, webhookRequest(body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != "card_declined" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
}

func TestPaymentWebhookRejectsUnknownType(t *testing.T) {
	body := `{"event_id":"` + uuid.NewString() + `","type":"payment.pending","order_id":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	PaymentWebhook(&testOrdersService{}, newTestGuard(), testLogger())(resp, webhookRequest(body))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentWebhookRequiresAmountOnSuccess(t *testing.T) {
	guard := newTestGuard()
	body := `{"event_id":"` + uuid.NewString() + `","type":"payment.succeeded","order_id":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	PaymentWebhook(&testOrdersService{}, guard, testLogger())(resp, webhookRequest(body))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(guard.deleted) != 1 {
		t.Fatal("expected marker released so a corrected delivery can retry")
	}
}

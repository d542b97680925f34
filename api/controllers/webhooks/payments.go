package webhooks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketloom/ticketloom-backend/api/responses"
	"github.com/ticketloom/ticketloom-backend/api/validators"
	"github.com/ticketloom/ticketloom-backend/internal/orders"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

const (
	paymentEventSucceeded = "payment.succeeded"
	paymentEventFailed    = "payment.failed"

	paymentWebhookConsumer = "payment-webhooks"
)

// paymentWebhookGuard dedupes gateway deliveries by event id. The gateway
// retries until it sees a 2xx, so every event can arrive more than once.
type paymentWebhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type paymentWebhookRequest struct {
	EventID     uuid.UUID        `json:"event_id" validate:"required"`
	Type        string           `json:"type" validate:"required"`
	OrderID     uuid.UUID        `json:"order_id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	ProviderRef string           `json:"provider_ref,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// PaymentWebhook processes gateway payment callbacks for pending orders.
func PaymentWebhook(svc orders.Service, guard paymentWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		var req paymentWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if req.Type != paymentEventSucceeded && req.Type != paymentEventFailed {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment event type").WithDetails(map[string]any{"type": req.Type}))
			return
		}

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, paymentWebhookConsumer, req.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := handlePaymentEvent(ctx, svc, req); err != nil {
			_ = guard.Delete(ctx, paymentWebhookConsumer, req.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithOrderID(ctx, req.OrderID.String()), fmt.Sprintf("payment event %s processed", req.EventID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func handlePaymentEvent(ctx context.Context, svc orders.Service, req paymentWebhookRequest) error {
	switch req.Type {
	case paymentEventSucceeded:
		if req.Amount == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount required for payment.succeeded")
		}
		_, err := svc.ConfirmPayment(ctx, orders.PaymentResult{
			OrderID:     req.OrderID,
			Amount:      *req.Amount,
			ProviderRef: req.ProviderRef,
		})
		return err
	case paymentEventFailed:
		return svc.HandlePaymentFailure(ctx, req.OrderID, req.Reason)
	}
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/idempotency"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/payloads"
)

const orderNotificationConsumer = "order-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches domain events and turns order and waitlist transitions
// into in-app notifications. Dispatch failures never reach back into the
// originating transaction; the outbox boundary already committed it.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	builder, ok := notificationBuilders[eventType]
	if !ok {
		c.logg.Info(logCtx, "skipping event without notification mapping")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := builder(envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "notification write failed", err)
		_ = c.idempotency.Delete(ctx, orderNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithUserID(logCtx, notification.UserID.String()), "notification created")
	return processResult{ack: true}
}

type notificationBuilder func(data json.RawMessage) (*models.Notification, error)

var notificationBuilders = map[enums.OutboxEventType]notificationBuilder{
	enums.EventOrderConfirmed:    buildOrderConfirmed,
	enums.EventOrderCancelled:    buildOrderCancelled,
	enums.EventOrderExpired:      buildOrderExpired,
	enums.EventOrderRefunded:     buildOrderRefunded,
	enums.EventWaitlistNotified:  buildWaitlistOffer,
	enums.EventTicketTransferred: buildTicketTransferred,
}

func buildOrderConfirmed(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderConfirmedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  payload.UserID,
		Type:    enums.NotificationOrderConfirmed,
		Title:   "Order confirmed",
		Message: fmt.Sprintf("Order %s is confirmed. %d ticket(s) are in your account.", payload.OrderNumber, len(payload.TicketIDs)),
		Link:    stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
	}, nil
}

func buildOrderCancelled(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderCancelledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	message := "Your order was cancelled."
	if payload.Reason != "" {
		message = fmt.Sprintf("Your order was cancelled: %s.", payload.Reason)
	}
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  payload.UserID,
		Type:    enums.NotificationOrderCancelled,
		Title:   "Order cancelled",
		Message: message,
		Link:    stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
	}, nil
}

func buildOrderExpired(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderExpiredEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  payload.UserID,
		Type:    enums.NotificationOrderCancelled,
		Title:   "Checkout expired",
		Message: "Your checkout window lapsed and the seats were released.",
		Link:    stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
	}, nil
}

func buildOrderRefunded(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.OrderRefundedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  payload.UserID,
		Type:    enums.NotificationOrderRefunded,
		Title:   "Refund issued",
		Message: fmt.Sprintf("A refund of %s was issued for your order.", payload.RefundAmount),
		Link:    stringPtr(fmt.Sprintf("/orders/%s", payload.OrderID)),
	}, nil
}

func buildWaitlistOffer(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.WaitlistNotifiedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	return &models.Notification{
		ID:     uuid.New(),
		UserID: payload.UserID,
		Type:   enums.NotificationWaitlistOffer,
		Title:  "Tickets available",
		Message: fmt.Sprintf("Seats you waited for are available. Complete your purchase before %s.",
			payload.ExpiresAt.Format("Jan 2 15:04 MST")),
		Link: stringPtr(fmt.Sprintf("/events/%s", payload.EventID)),
	}, nil
}

func buildTicketTransferred(data json.RawMessage) (*models.Notification, error) {
	var payload payloads.TicketTransferredEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.ToUserID == uuid.Nil {
		return nil, fmt.Errorf("recipient user id missing")
	}
	return &models.Notification{
		ID:      uuid.New(),
		UserID:  payload.ToUserID,
		Type:    enums.NotificationTicketTransferred,
		Title:   "Ticket received",
		Message: "A ticket was transferred to you.",
		Link:    stringPtr(fmt.Sprintf("/tickets/%s", payload.TicketID)),
	}, nil
}

func stringPtr(value string) *string {
	return &value
}

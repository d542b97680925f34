package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketloom/ticketloom-backend/api/controllers"
	webhookcontrollers "github.com/ticketloom/ticketloom-backend/api/controllers/webhooks"
	"github.com/ticketloom/ticketloom-backend/api/middleware"
	"github.com/ticketloom/ticketloom-backend/internal/events"
	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/internal/notifications"
	"github.com/ticketloom/ticketloom-backend/internal/orders"
	"github.com/ticketloom/ticketloom-backend/internal/tickets"
	"github.com/ticketloom/ticketloom-backend/internal/waitlist"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	"github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/idempotency"
	"github.com/ticketloom/ticketloom-backend/pkg/redis"
)

type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Events        events.Service
	Inventory     inventory.Service
	Holds         holds.Service
	Orders        orders.Service
	Tickets       tickets.Service
	Waitlist      waitlist.Service
	Notifications notifications.Service

	WebhookGuard *idempotency.Manager
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/events", controllers.ListUpcomingEvents(deps.Events, logg))
		r.Get("/events/{eventId}", controllers.GetEvent(deps.Events, logg))
		r.Get("/events/{eventId}/tiers", controllers.ListTiers(deps.Inventory, logg))
		r.Get("/tiers/{tierId}/availability", controllers.TierAvailability(deps.Inventory, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(deps.Orders, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/events", func(r chi.Router) {
			r.Post("/", controllers.CreateEvent(deps.Events, logg))
			r.Get("/mine", controllers.ListMyEvents(deps.Events, logg))
			r.Get("/{eventId}", controllers.GetEvent(deps.Events, logg))
			r.Patch("/{eventId}", controllers.UpdateEvent(deps.Events, logg))
			r.Post("/{eventId}/publish", controllers.PublishEvent(deps.Events, logg))
			r.Post("/{eventId}/cancel", controllers.CancelEvent(deps.Events, logg))
			r.Post("/{eventId}/complete", controllers.CompleteEvent(deps.Events, logg))
			r.Post("/{eventId}/tiers", controllers.CreateTier(deps.Inventory, logg))
			r.Get("/{eventId}/tiers", controllers.ListTiers(deps.Inventory, logg))
		})

		r.Route("/tiers", func(r chi.Router) {
			r.Patch("/{tierId}", controllers.UpdateTier(deps.Inventory, logg))
			r.Delete("/{tierId}", controllers.DeleteTier(deps.Inventory, logg))
			r.Get("/{tierId}/availability", controllers.TierAvailability(deps.Inventory, logg))
		})

		r.Route("/holds", func(r chi.Router) {
			r.Post("/", controllers.CreateHold(deps.Holds, logg))
			r.Get("/", controllers.ListActiveHolds(deps.Holds, logg))
			r.Get("/{holdId}", controllers.GetHold(deps.Holds, logg))
			r.Post("/{holdId}/extend", controllers.ExtendHold(deps.Holds, logg))
			r.Delete("/{holdId}", controllers.ReleaseHold(deps.Holds, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/{orderId}/refund", controllers.RefundOrder(deps.Orders, logg))
			r.Get("/{orderId}/tickets", controllers.ListOrderTickets(deps.Tickets, logg))
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", controllers.ListMyTickets(deps.Tickets, logg))
			r.Post("/check-in", controllers.CheckInTicket(deps.Tickets, logg))
			r.Post("/{ticketId}/transfer", controllers.TransferTicket(deps.Tickets, logg))
			r.Put("/{ticketId}/attendee", controllers.SetTicketAttendee(deps.Tickets, logg))
		})

		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", controllers.JoinWaitlist(deps.Waitlist, logg))
			r.Get("/{entryId}", controllers.GetWaitlistEntry(deps.Waitlist, logg))
			r.Delete("/{entryId}", controllers.LeaveWaitlist(deps.Waitlist, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}

package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/api/middleware"
	"github.com/ticketloom/ticketloom-backend/api/responses"
	"github.com/ticketloom/ticketloom-backend/api/validators"
	"github.com/ticketloom/ticketloom-backend/internal/events"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type createEventRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description *string    `json:"description,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

type updateEventRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

func CreateEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Create(r.Context(), events.CreateEventInput{
			OrganizerID: organizerID,
			Title:       req.Title,
			Description: req.Description,
			Venue:       req.Venue,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

func UpdateEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventID, err := validators.ParsePathUUID(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Update(r.Context(), events.UpdateEventInput{
			EventID:     eventID,
			OrganizerID: organizerID,
			Title:       req.Title,
			Description: req.Description,
			Venue:       req.Venue,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// eventTransition covers publish, cancel and complete, which share a shape.
func eventTransition(logg *logger.Logger, fn func(r *http.Request, eventID, organizerID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventID, err := validators.ParsePathUUID(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := fn(r, eventID, organizerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func PublishEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return eventTransition(logg, func(r *http.Request, eventID, organizerID uuid.UUID) (any, error) {
		return svc.Publish(r.Context(), eventID, organizerID)
	})
}

func CancelEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return eventTransition(logg, func(r *http.Request, eventID, organizerID uuid.UUID) (any, error) {
		return svc.Cancel(r.Context(), eventID, organizerID)
	})
}

func CompleteEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return eventTransition(logg, func(r *http.Request, eventID, organizerID uuid.UUID) (any, error) {
		return svc.Complete(r.Context(), eventID, organizerID)
	})
}

func GetEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParsePathUUID(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func ListMyEvents(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizerID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForOrganizer(r.Context(), organizerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ListUpcomingEvents(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListUpcoming(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// requireUserID pulls the authenticated caller out of the request context.
func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return userID, nil
}

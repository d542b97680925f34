package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/api/responses"
	"github.com/ticketloom/ticketloom-backend/api/validators"
	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type createHoldRequest struct {
	TierID   uuid.UUID `json:"tier_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
}

func CreateHold(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createHoldRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := holds.CreateHoldInput{
			UserID:   userID,
			TierID:   req.TierID,
			Quantity: req.Quantity,
		}
		if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
			input.IdempotencyKey = &key
		}

		hold, err := svc.CreateHold(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, hold)
	}
}

func ExtendHold(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		holdID, err := validators.ParsePathUUID(chi.URLParam(r, "holdId"), "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hold, err := svc.ExtendHold(r.Context(), holdID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, hold)
	}
}

func ReleaseHold(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		holdID, err := validators.ParsePathUUID(chi.URLParam(r, "holdId"), "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReleaseHold(r.Context(), holdID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func GetHold(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdID, err := validators.ParsePathUUID(chi.URLParam(r, "holdId"), "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hold, err := svc.GetHold(r.Context(), holdID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, hold)
	}
}

func ListActiveHolds(svc holds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListActive(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

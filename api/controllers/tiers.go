package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ticketloom/ticketloom-backend/api/responses"
	"github.com/ticketloom/ticketloom-backend/api/validators"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type createTierRequest struct {
	Name         string          `json:"name" validate:"required,min=1,max=120"`
	Description  *string         `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price" validate:"required"`
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	Quantity     int             `json:"quantity" validate:"required,min=1"`
	MinPurchase  int             `json:"min_purchase" validate:"omitempty,min=1"`
	MaxPurchase  int             `json:"max_purchase" validate:"omitempty,min=1"`
	SalesStartAt *time.Time      `json:"sales_start_at,omitempty"`
	SalesEndAt   *time.Time      `json:"sales_end_at,omitempty"`
	Transferable *bool           `json:"transferable,omitempty"`
	Position     int             `json:"position" validate:"omitempty,min=0"`
}

type updateTierRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description  *string          `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Quantity     *int             `json:"quantity,omitempty" validate:"omitempty,min=1"`
	MinPurchase  *int             `json:"min_purchase,omitempty" validate:"omitempty,min=1"`
	MaxPurchase  *int             `json:"max_purchase,omitempty" validate:"omitempty,min=1"`
	SalesStartAt *time.Time       `json:"sales_start_at,omitempty"`
	SalesEndAt   *time.Time       `json:"sales_end_at,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty"`
	Transferable *bool            `json:"transferable,omitempty"`
	Position     *int             `json:"position,omitempty" validate:"omitempty,min=0"`
}

func CreateTier(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParsePathUUID(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createTierRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tier, err := svc.CreateTier(r.Context(), inventory.CreateTierInput{
			EventID:      eventID,
			Name:         req.Name,
			Description:  req.Description,
			Price:        req.Price,
			CurrencyCode: req.CurrencyCode,
			Quantity:     req.Quantity,
			MinPurchase:  req.MinPurchase,
			MaxPurchase:  req.MaxPurchase,
			SalesStartAt: req.SalesStartAt,
			SalesEndAt:   req.SalesEndAt,
			Transferable: req.Transferable,
			Position:     req.Position,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, tier)
	}
}

func UpdateTier(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tierID, err := validators.ParsePathUUID(chi.URLParam(r, "tierId"), "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateTierRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tier, err := svc.UpdateTier(r.Context(), inventory.UpdateTierInput{
			TierID:       tierID,
			Name:         req.Name,
			Description:  req.Description,
			Price:        req.Price,
			Quantity:     req.Quantity,
			MinPurchase:  req.MinPurchase,
			MaxPurchase:  req.MaxPurchase,
			SalesStartAt: req.SalesStartAt,
			SalesEndAt:   req.SalesEndAt,
			IsActive:     req.IsActive,
			Transferable: req.Transferable,
			Position:     req.Position,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tier)
	}
}

func DeleteTier(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tierID, err := validators.ParsePathUUID(chi.URLParam(r, "tierId"), "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteTier(r.Context(), tierID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func ListTiers(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParsePathUUID(chi.URLParam(r, "eventId"), "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tiers, err := svc.ListTiers(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tiers)
	}
}

func TierAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tierID, err := validators.ParsePathUUID(chi.URLParam(r, "tierId"), "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		availability, err := svc.Availability(r.Context(), tierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

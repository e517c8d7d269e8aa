package rfqs

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// RFQService is the slice of the deal state machine the RFQ routes use.
type RFQService interface {
	CreateRFQ(ctx context.Context, input deals.CreateRFQInput) (*models.RFQ, error)
	CancelRFQ(ctx context.Context, rfqID uuid.UUID, actor deals.Actor) (*deals.CancelRFQResult, error)
	GetRFQ(ctx context.Context, rfqID uuid.UUID, actor deals.Actor) (*models.RFQ, error)
	SubmitQuote(ctx context.Context, input deals.SubmitQuoteInput) (*deals.SubmitQuoteResult, error)
}

type createRFQRequest struct {
	Title            string  `json:"title" validate:"required,notblank,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=4000"`
	Quantity         int64   `json:"quantity" validate:"required,gt=0,max=1000000000"`
	BudgetMin        *int64  `json:"budget_min" validate:"omitempty,min=0,max=1000000000000000"`
	BudgetMax        *int64  `json:"budget_max" validate:"omitempty,min=0,max=1000000000000000"`
	TargetSupplierID *string `json:"target_supplier_id" validate:"omitempty,uuid"`
}

type submitQuoteRequest struct {
	UnitPrice    int64   `json:"unit_price" validate:"required,gt=0,max=1000000000000000"`
	DeliveryDate string  `json:"delivery_date" validate:"required,calendardate"`
	Note         *string `json:"note" validate:"omitempty,max=2000"`
}

type cancelRFQResponse struct {
	RFQ            *models.RFQ `json:"rfq"`
	RejectedQuotes []uuid.UUID `json:"rejected_quotes"`
	RefundedAmount int64       `json:"refunded_amount"`
}

type submitQuoteResponse struct {
	Quote      *models.Quote    `json:"quote"`
	ChatRoom   *models.ChatRoom `json:"chat_room"`
	HeldAmount int64            `json:"held_amount"`
}

// Create opens a new RFQ for the authenticated buyer.
func Create(svc RFQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRFQRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := deals.CreateRFQInput{
			Actor:       actor,
			Title:       validators.SanitizeString(payload.Title, 200),
			Description: payload.Description,
			Quantity:    payload.Quantity,
			BudgetMin:   payload.BudgetMin,
			BudgetMax:   payload.BudgetMax,
		}
		if payload.TargetSupplierID != nil {
			target, err := uuid.Parse(*payload.TargetSupplierID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target_supplier_id"))
				return
			}
			input.TargetSupplierID = &target
		}

		rfq, err := svc.CreateRFQ(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rfq)
	}
}

// Get returns an RFQ visible to the caller.
func Get(svc RFQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rfqID, err := validators.ParseUUIDParam(r, "rfqId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rfq, err := svc.GetRFQ(r.Context(), rfqID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rfq)
	}
}

// Cancel withdraws an open RFQ and refunds every pending quote's hold.
func Cancel(svc RFQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rfqID, err := validators.ParseUUIDParam(r, "rfqId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelRFQ(r.Context(), rfqID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rejected := result.RejectedQuotes
		if rejected == nil {
			rejected = []uuid.UUID{}
		}
		responses.WriteSuccess(w, cancelRFQResponse{
			RFQ:            result.RFQ,
			RejectedQuotes: rejected,
			RefundedAmount: result.RefundedAmount,
		})
	}
}

// SubmitQuote places the authenticated supplier's bid on an RFQ.
func SubmitQuote(svc RFQService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rfqID, err := validators.ParseUUIDParam(r, "rfqId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		delivery, err := parseDeliveryDate(payload.DeliveryDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SubmitQuote(r.Context(), deals.SubmitQuoteInput{
			Actor:        actor,
			RFQID:        rfqID,
			UnitPrice:    payload.UnitPrice,
			DeliveryDate: delivery,
			Note:         payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, submitQuoteResponse{
			Quote:      result.Quote,
			ChatRoom:   result.ChatRoom,
			HeldAmount: result.HeldAmount,
		})
	}
}

// parseDeliveryDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDeliveryDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if value, err := time.Parse(time.DateOnly, raw); err == nil {
		return value, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery_date").
			WithDetails(map[string]string{"delivery_date": "must be YYYY-MM-DD or RFC 3339"})
	}
	return value.UTC(), nil
}

func actorFromRequest(r *http.Request) (deals.Actor, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return deals.Actor{}, err
	}
	return deals.Actor{UserID: userID, Role: role}, nil
}

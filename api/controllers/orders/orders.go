package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// OrderService is the order half of the deal state machine.
type OrderService interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor deals.Actor) (*models.Order, error)
	AdvanceOrder(ctx context.Context, input deals.AdvanceOrderInput) (*deals.AdvanceOrderResult, error)
}

// InvoiceReader loads the invoice issued for an order.
type InvoiceReader interface {
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

type advanceOrderResponse struct {
	Order    *models.Order   `json:"order"`
	Refunded int64           `json:"refunded"`
	Invoice  *models.Invoice `json:"invoice,omitempty"`
}

// Detail returns an order to one of its parties or an admin.
func Detail(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, orderID, err := orderRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdvanceStatus applies a single order status change for the caller.
func AdvanceStatus(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, orderID, err := orderRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		result, err := svc.AdvanceOrder(ctx, deals.AdvanceOrderInput{
			OrderID: orderID,
			Actor:   actor,
			Target:  target,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, advanceOrderResponse{
			Order:    result.Order,
			Refunded: result.Refunded,
			Invoice:  result.Invoice,
		})
	}
}

// Invoice returns the invoice of an order the caller may see.
func Invoice(svc OrderService, invoices InvoiceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || invoices == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		actor, orderID, err := orderRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// GetOrder enforces party visibility before the invoice is read.
		if _, err := svc.GetOrder(r.Context(), orderID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := invoices.GetByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

func orderRequest(r *http.Request) (deals.Actor, uuid.UUID, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return deals.Actor{}, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return deals.Actor{}, uuid.Nil, err
	}
	return deals.Actor{UserID: userID, Role: role}, orderID, nil
}

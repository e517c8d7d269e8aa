package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	internalpayments "github.com/angelmondragon/rfqmarket-backend/internal/payments"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// PaymentService settles and reverses order payments.
type PaymentService interface {
	Confirm(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.ConfirmResult, error)
	Cancel(ctx context.Context, input internalpayments.CancelInput) (*deals.CancelOrderResult, error)
}

type confirmRequest struct {
	OrderID    string `json:"order_id" validate:"required,uuid"`
	PaymentKey string `json:"payment_key" validate:"required,max=200"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=200"`
}

type cancelResponse struct {
	Order    *models.Order `json:"order"`
	Refunded int64         `json:"refunded"`
}

// Confirm settles an order with the payment gateway. Replays are served by
// the idempotency middleware before this handler runs.
func Confirm(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		result, err := svc.Confirm(ctx, internalpayments.ConfirmInput{
			Actor:          actor,
			OrderID:        orderID,
			PaymentKey:     strings.TrimSpace(payload.PaymentKey),
			Amount:         payload.Amount,
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Cancel reverses a settled order and returns the supplier fee.
func Cancel(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID.String())
		result, err := svc.Cancel(ctx, internalpayments.CancelInput{
			Actor:          actor,
			OrderID:        orderID,
			Reason:         validators.SanitizeString(payload.Reason, 200),
			IdempotencyKey: idempotencyKey(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelResponse{Order: result.Order, Refunded: result.Refunded})
	}
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))
}

func actorFromRequest(r *http.Request) (deals.Actor, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return deals.Actor{}, err
	}
	return deals.Actor{UserID: userID, Role: role}, nil
}

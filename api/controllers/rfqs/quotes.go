package rfqs

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// QuoteService covers quote reads and the buyer's decision on a quote.
type QuoteService interface {
	GetQuote(ctx context.Context, quoteID uuid.UUID, actor deals.Actor) (*models.Quote, error)
	AcceptQuote(ctx context.Context, quoteID uuid.UUID, actor deals.Actor) (*deals.AcceptQuoteResult, error)
	RejectQuote(ctx context.Context, quoteID uuid.UUID, actor deals.Actor) (*deals.RejectQuoteResult, error)
}

type acceptQuoteResponse struct {
	Quote          *models.Quote `json:"quote"`
	Order          *models.Order `json:"order"`
	RejectedQuotes []uuid.UUID   `json:"rejected_quotes"`
	RefundedAmount int64         `json:"refunded_amount"`
}

type rejectQuoteResponse struct {
	Quote          *models.Quote `json:"quote"`
	RefundedAmount int64         `json:"refunded_amount"`
}

func GetQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, quoteID, err := quoteRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.GetQuote(r.Context(), quoteID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// AcceptQuote converts a pending quote into an order.
func AcceptQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, quoteID, err := quoteRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AcceptQuote(r.Context(), quoteID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rejected := result.RejectedQuotes
		if rejected == nil {
			rejected = []uuid.UUID{}
		}
		responses.WriteSuccess(w, acceptQuoteResponse{
			Quote:          result.Quote,
			Order:          result.Order,
			RejectedQuotes: rejected,
			RefundedAmount: result.RefundedAmount,
		})
	}
}

func RejectQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deal service unavailable"))
			return
		}
		actor, quoteID, err := quoteRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RejectQuote(r.Context(), quoteID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rejectQuoteResponse{Quote: result.Quote, RefundedAmount: result.RefundedAmount})
	}
}

func quoteRequest(r *http.Request) (deals.Actor, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return deals.Actor{}, uuid.Nil, err
	}
	quoteID, err := validators.ParseUUIDParam(r, "quoteId")
	if err != nil {
		return deals.Actor{}, uuid.Nil, err
	}
	return actor, quoteID, nil
}

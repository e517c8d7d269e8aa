package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/internal/cron"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

// NegotiationSweeper runs one expiration pass on demand.
type NegotiationSweeper interface {
	Sweep(ctx context.Context) (*cron.SweepSummary, error)
}

// AdminSweepNegotiations expires lapsed chat rooms now. Per-room failures
// are logged; the summary is returned whenever one was produced.
func AdminSweepNegotiations(sweeper NegotiationSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}

		ctx := logg.WithField(r.Context(), "event", "negotiations.sweep")
		summary, err := sweeper.Sweep(ctx)
		if err != nil {
			if summary == nil || summary.TotalExpiredRooms == 0 {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "negotiation sweep failed"))
				return
			}
			logg.Error(ctx, "negotiation sweep finished with failures", err)
		}
		responses.WriteSuccess(w, summary)
	}
}

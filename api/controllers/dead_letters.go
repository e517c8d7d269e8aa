package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/pagination"
)

// DeadLetterQueue is the operator view of outbox rows the relay gave up on.
type DeadLetterQueue interface {
	List(ctx context.Context, q outbox.DeadLetterQuery) ([]models.OutboxDLQ, *pagination.Keyset, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterPage struct {
	Items  []models.OutboxDLQ `json:"items"`
	Cursor string             `json:"cursor,omitempty"`
}

var errDeadLettersUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "dead letter queue unavailable")

// AdminListDeadLetters pages dead letters newest first, optionally by reason.
func AdminListDeadLetters(dlq DeadLetterQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, errDeadLettersUnavailable)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		after, err := pagination.Decode(page.Cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		reason, err := enums.ParseOutboxDLQErrorReason(r.URL.Query().Get("reason"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		rows, next, err := dlq.List(r.Context(), outbox.DeadLetterQuery{Reason: reason, Limit: page.Limit, After: after})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := deadLetterPage{Items: rows}
		if out.Items == nil {
			out.Items = []models.OutboxDLQ{}
		}
		if next != nil {
			out.Cursor = next.Encode()
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminRequeueDeadLetter hands a dead-lettered event back to the relay.
func AdminRequeueDeadLetter(dlq DeadLetterQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, errDeadLettersUnavailable)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithField(r.Context(), "outbox_id", eventID.String())
		if err := dlq.Requeue(ctx, eventID); err != nil {
			if errors.Is(err, outbox.ErrDeadLetterNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no dead letter for event"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue dead letter"))
			return
		}
		logg.Info(ctx, "outbox.requeued")
		responses.WriteSuccess(w, map[string]any{"event_id": eventID, "requeued": true})
	}
}

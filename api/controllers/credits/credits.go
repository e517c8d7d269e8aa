package credits

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rfqmarket-backend/api/middleware"
	"github.com/angelmondragon/rfqmarket-backend/api/responses"
	"github.com/angelmondragon/rfqmarket-backend/api/validators"
	internalcredits "github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
)

// LedgerReader exposes a supplier's balance and movement log.
type LedgerReader interface {
	GetBalance(ctx context.Context, supplierID uuid.UUID) (int64, error)
	GetLog(ctx context.Context, params internalcredits.LogParams) (*internalcredits.LogResult, error)
}

// LedgerAdmin covers operator top-ups and audits.
type LedgerAdmin interface {
	Charge(ctx context.Context, tx *gorm.DB, movement internalcredits.Movement) (*models.CreditLogEntry, error)
	Reconcile(ctx context.Context, supplierID uuid.UUID) (*internalcredits.Reconciliation, error)
}

type balanceResponse struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Balance    int64     `json:"balance"`
}

type chargeRequest struct {
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required,notblank,max=200"`
	ReferenceID *string `json:"reference_id" validate:"omitempty,uuid"`
}

type reconcileResponse struct {
	*internalcredits.Reconciliation
	Consistent bool `json:"consistent"`
}

// Balance returns the authenticated supplier's credit balance.
func Balance(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		supplierID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{SupplierID: supplierID, Balance: balance})
	}
}

// Log pages through the authenticated supplier's movements, newest first.
func Log(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		supplierID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GetLog(r.Context(), internalcredits.LogParams{
			SupplierID: supplierID,
			Limit:      page.Limit,
			Cursor:     page.Cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Items == nil {
			result.Items = []models.CreditLogEntry{}
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCharge tops up a supplier's balance.
func AdminCharge(svc LedgerAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		adminID, role, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload chargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement := internalcredits.Movement{
			SupplierID:  supplierID,
			Amount:      payload.Amount,
			Description: validators.SanitizeString(payload.Description, 200),
			Actor:       &outbox.ActorRef{UserID: adminID, Role: role},
		}
		if payload.ReferenceID != nil {
			ref, err := uuid.Parse(*payload.ReferenceID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference_id"))
				return
			}
			movement.ReferenceID = &ref
		}

		ctx := logg.WithSupplierID(r.Context(), supplierID.String())
		entry, err := svc.Charge(ctx, nil, movement)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithField(ctx, "amount", payload.Amount), "supplier credit charged")
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// AdminReconcile compares a supplier's cached balance with the sum of its log.
func AdminReconcile(svc LedgerAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconcileResponse{Reconciliation: result, Consistent: result.Consistent()})
	}
}

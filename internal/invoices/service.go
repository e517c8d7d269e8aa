package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/internal/commission"
	dbpkg "github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service issues one invoice per settled order.
type Service interface {
	Issue(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService wires the invoice issuer.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, tx: tx, outbox: outbox, now: clock}, nil
}

// FormatNumber renders INV-YYYYMMDD-NNNN.
func FormatNumber(issuedAt time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", dayKey(issuedAt), seq)
}

// Issue returns the order's invoice, creating it when absent. Calling it again
// for the same order returns the existing invoice.
func (s *service) Issue(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var invoice *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !order.Status.RequiresInvoice() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is not settled").
				WithDetails(map[string]any{"status": order.Status})
		}

		existing, err := repo.FindByOrder(ctx, orderID)
		if err == nil {
			invoice = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		quote, err := repo.FindQuote(ctx, order.QuoteID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "accepted quote not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
		}

		repeat, err := repo.HasPriorSettledOrder(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trade history")
		}

		now := s.now()
		seq, err := repo.NextSequence(ctx, dayKey(now))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate invoice number")
		}

		created := &models.Invoice{
			OrderID:              order.ID,
			Number:               FormatNumber(now, seq),
			BuyerID:              order.BuyerID,
			SupplierID:           order.SupplierID,
			SupplyAmount:         order.ProductAmount,
			CommissionAmount:     order.CommissionAmount,
			SettlementCommission: commission.SettlementCommission(quote),
			TotalAmount:          order.TotalAmount,
			IsRepeatTrade:        repeat,
			IssuedAt:             now,
		}
		if err := repo.Create(ctx, created); err != nil {
			return err
		}
		invoice = created

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceIssued,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   created.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.InvoiceIssuedEvent{
				InvoiceID:     created.ID,
				OrderID:       order.ID,
				Number:        created.Number,
				TotalAmount:   created.TotalAmount,
				IsRepeatTrade: repeat,
			},
		})
	})
	if err != nil {
		// A concurrent issuer won the unique index on order_id.
		if dbpkg.IsUniqueViolation(err, "") {
			return s.GetByOrder(ctx, orderID)
		}
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue invoice")
		}
		return nil, err
	}
	return invoice, nil
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	invoice, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

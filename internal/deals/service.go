// Package deals owns the RFQ, quote, chat room and order lifecycle. Every
// operation runs in one database transaction together with the credit
// movements it causes; notifications and invoice issuance happen after commit.
package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	dbpkg "github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultNegotiationWindow = 72 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledger interface {
	Hold(ctx context.Context, tx *gorm.DB, movement credits.Movement) (*models.CreditLogEntry, error)
	Refund(ctx context.Context, tx *gorm.DB, movement credits.Movement) (*models.CreditLogEntry, error)
}

type ratePolicy interface {
	RateFor(ctx context.Context, tx *gorm.DB, buyerID, supplierID uuid.UUID) (decimal.Decimal, error)
}

// Notifier receives notices once the owning transaction has committed.
type Notifier interface {
	Notify(ctx context.Context, notices ...notifications.Notice)
}

// InvoiceIssuer creates the invoice for a settled order.
type InvoiceIssuer interface {
	Issue(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

// Actor is the authenticated caller of a deal operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: a.Role}
}

// Service exposes one operation per legal deal transition plus reads.
type Service interface {
	CreateRFQ(ctx context.Context, input CreateRFQInput) (*models.RFQ, error)
	CancelRFQ(ctx context.Context, rfqID uuid.UUID, actor Actor) (*CancelRFQResult, error)
	GetRFQ(ctx context.Context, rfqID uuid.UUID, actor Actor) (*models.RFQ, error)

	SubmitQuote(ctx context.Context, input SubmitQuoteInput) (*SubmitQuoteResult, error)
	AcceptQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*AcceptQuoteResult, error)
	RejectQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*RejectQuoteResult, error)
	GetQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*models.Quote, error)

	ExpireNegotiation(ctx context.Context, chatRoomID uuid.UUID) (*ExpireResult, error)
	ListLapsedNegotiations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	AdvanceOrder(ctx context.Context, input AdvanceOrderInput) (*AdvanceOrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error)
	CancelPaidOrder(ctx context.Context, input CancelPaidOrderInput) (*CancelOrderResult, error)
}

// ServiceParams wires the deal state machine.
type ServiceParams struct {
	Repository        Repository
	Tx                txRunner
	Ledger            ledger
	Policy            ratePolicy
	Outbox            outboxPublisher
	Notifier          Notifier
	Invoices          InvoiceIssuer
	Logger            *logger.Logger
	NegotiationWindow time.Duration
	Clock             func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger
	policy   ratePolicy
	outbox   outboxPublisher
	notifier Notifier
	invoices InvoiceIssuer
	logg     *logger.Logger
	window   time.Duration
	now      func() time.Time
}

// NewService builds the deal state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("deals repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("credit ledger required")
	}
	if params.Policy == nil {
		return nil, fmt.Errorf("commission policy required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice issuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	window := params.NegotiationWindow
	if window <= 0 {
		window = defaultNegotiationWindow
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repository,
		tx:       params.Tx,
		ledger:   params.Ledger,
		policy:   params.Policy,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		invoices: params.Invoices,
		logg:     params.Logger,
		window:   window,
		now:      clock,
	}, nil
}

// loadErr maps a repository read failure onto the error taxonomy.
func loadErr(err error, entity string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}

func writeErr(err error, action string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func alreadyProcessed(entity string, status any) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, entity+" already processed").
		WithDetails(map[string]any{"status": status})
}

func requireActor(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "actor role missing")
	}
	return nil
}

func requireRole(actor Actor, role enums.ActorRole) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != role {
		return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s role required", role))
	}
	return nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

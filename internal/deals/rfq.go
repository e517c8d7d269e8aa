package deals

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/rfqmarket-backend/internal/commission"
	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	dbpkg "github.com/angelmondragon/rfqmarket-backend/pkg/db"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateRFQInput describes a new request for quotation.
type CreateRFQInput struct {
	Actor            Actor
	Title            string
	Description      *string
	Quantity         int64
	BudgetMin        *int64
	BudgetMax        *int64
	TargetSupplierID *uuid.UUID
}

// CancelRFQResult lists the quotes rejected by a cancellation.
type CancelRFQResult struct {
	RFQ            *models.RFQ
	RejectedQuotes []uuid.UUID
	RefundedAmount int64
}

func (s *service) CreateRFQ(ctx context.Context, input CreateRFQInput) (*models.RFQ, error) {
	if err := requireRole(input.Actor, enums.ActorRoleBuyer); err != nil {
		return nil, err
	}
	if err := validateRFQInput(input); err != nil {
		return nil, err
	}

	rfq := &models.RFQ{
		BuyerID:          input.Actor.UserID,
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		Quantity:         input.Quantity,
		BudgetMin:        input.BudgetMin,
		BudgetMax:        input.BudgetMax,
		IsTargeted:       input.TargetSupplierID != nil,
		TargetSupplierID: input.TargetSupplierID,
		Status:           enums.RFQStatusOpen,
	}
	if err := s.repo.CreateRFQ(ctx, rfq); err != nil {
		return nil, writeErr(err, "create rfq")
	}
	return rfq, nil
}

// Upper bounds on what an RFQ or quote may carry. Amounts are whole
// currency units.
const (
	MaxQuantity int64 = 1_000_000_000
	MaxAmount   int64 = 1_000_000_000_000_000
)

func validateRFQInput(input CreateRFQInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.Quantity <= 0 || input.Quantity > MaxQuantity {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be between 1 and %d", MaxQuantity)
	}
	if input.BudgetMin != nil && (*input.BudgetMin < 0 || *input.BudgetMin > MaxAmount) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "budget_min must be between 0 and %d", MaxAmount)
	}
	if input.BudgetMax != nil && (*input.BudgetMax < 0 || *input.BudgetMax > MaxAmount) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "budget_max must be between 0 and %d", MaxAmount)
	}
	if input.BudgetMin != nil && input.BudgetMax != nil && *input.BudgetMin > *input.BudgetMax {
		return pkgerrors.New(pkgerrors.CodeValidation, "budget_min exceeds budget_max")
	}
	if input.TargetSupplierID != nil && *input.TargetSupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "target_supplier_id is invalid")
	}
	return nil
}

// CancelRFQ withdraws an open RFQ. Every pending quote is rejected with its
// hold refunded and its chat room closed.
func (s *service) CancelRFQ(ctx context.Context, rfqID uuid.UUID, actor Actor) (*CancelRFQResult, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer); err != nil {
		return nil, err
	}

	var (
		result  CancelRFQResult
		notices []notifications.Notice
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result, notices = CancelRFQResult{}, nil
		repo := s.repo.WithTx(tx)
		rfq, err := repo.FindRFQ(ctx, rfqID)
		if err != nil {
			return loadErr(err, "rfq")
		}
		if rfq.BuyerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "rfq belongs to another buyer")
		}
		changed, err := repo.TransitionRFQ(ctx, rfq.ID, []enums.RFQStatus{enums.RFQStatusOpen}, enums.RFQStatusCancelled)
		if err != nil {
			return writeErr(err, "cancel rfq")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeRFQClosed, "rfq is no longer open").
				WithDetails(map[string]any{"status": rfq.Status})
		}
		rfq.Status = enums.RFQStatusCancelled

		pending, err := repo.ListPendingQuotes(ctx, rfq.ID, uuid.Nil)
		if err != nil {
			return writeErr(err, "list pending quotes")
		}
		for i := range pending {
			quote := &pending[i]
			room, err := s.roomForQuote(ctx, repo, quote.ID)
			if err != nil {
				return err
			}
			outcome, err := s.closeQuote(ctx, tx, rfq, quote, room, enums.QuoteStatusRejected, enums.ChatRoomStatusClosed, actor,
				fmt.Sprintf("rfq %s cancelled", rfq.ID))
			if err != nil {
				return err
			}
			if !outcome.QuoteClosed {
				continue
			}
			refunded := outcome.Refunded
			result.RejectedQuotes = append(result.RejectedQuotes, quote.ID)
			result.RefundedAmount += refunded
			notices = append(notices, notifications.Notice{
				UserID:  quote.SupplierID,
				Type:    enums.NotificationTypeQuoteRejected,
				Title:   "RFQ cancelled",
				Message: fmt.Sprintf("The buyer cancelled %q. %d credits were returned.", rfq.Title, refunded),
				Link:    quoteLink(quote.ID),
			})
		}

		result.RFQ = rfq
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRFQCancelled,
			AggregateType: enums.AggregateRFQ,
			AggregateID:   rfq.ID,
			Actor:         actor.ref(),
			Data: payloads.RFQCancelledEvent{
				RFQID:          rfq.ID,
				BuyerID:        rfq.BuyerID,
				RejectedQuotes: result.RejectedQuotes,
				RefundedAmount: result.RefundedAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notices...)
	return &result, nil
}

func (s *service) GetRFQ(ctx context.Context, rfqID uuid.UUID, actor Actor) (*models.RFQ, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rfq, err := s.repo.FindRFQ(ctx, rfqID)
	if err != nil {
		return nil, loadErr(err, "rfq")
	}
	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleBuyer:
		if rfq.BuyerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "rfq belongs to another buyer")
		}
	case enums.ActorRoleSupplier:
		if rfq.IsTargeted && (rfq.TargetSupplierID == nil || *rfq.TargetSupplierID != actor.UserID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "rfq is targeted at another supplier")
		}
	}
	return rfq, nil
}

// closeOutcome reports which parts of a close applied.
type closeOutcome struct {
	RoomChanged bool
	QuoteClosed bool
	Refunded    int64
}

// closeQuote moves the chat room from active to roomStatus, then the quote
// from pending to status, refunding the snapshot hold. Rooms are always
// locked before quotes. A nil room skips straight to the quote. When the room
// is no longer active nothing else is touched.
func (s *service) closeQuote(
	ctx context.Context,
	tx *gorm.DB,
	rfq *models.RFQ,
	quote *models.Quote,
	room *models.ChatRoom,
	status enums.QuoteStatus,
	roomStatus enums.ChatRoomStatus,
	actor Actor,
	reason string,
) (closeOutcome, error) {
	var outcome closeOutcome
	repo := s.repo.WithTx(tx)

	var roomID *uuid.UUID
	if room != nil {
		roomID = uuidPtr(room.ID)
		changed, err := repo.TransitionChatRoom(ctx, room.ID, enums.ChatRoomStatusActive, roomStatus, s.now())
		if err != nil {
			return outcome, writeErr(err, "transition chat room")
		}
		if !changed {
			return outcome, nil
		}
		room.Status = roomStatus
		outcome.RoomChanged = true
	}

	changed, err := repo.TransitionQuote(ctx, quote.ID, status)
	if err != nil {
		return outcome, writeErr(err, "transition quote")
	}
	if !changed {
		return outcome, nil
	}
	quote.Status = status
	outcome.QuoteClosed = true

	outcome.Refunded, err = s.refundHold(ctx, tx, rfq, quote, reason, actor)
	if err != nil {
		return outcome, err
	}

	eventType := enums.EventQuoteRejected
	if status == enums.QuoteStatusExpired {
		eventType = enums.EventQuoteExpired
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateQuote,
		AggregateID:   quote.ID,
		Actor:         actor.ref(),
		Data: payloads.QuoteClosedEvent{
			QuoteID:        quote.ID,
			RFQID:          quote.RFQID,
			ChatRoomID:     roomID,
			SupplierID:     quote.SupplierID,
			Status:         status,
			RefundedAmount: outcome.Refunded,
		},
	})
	return outcome, err
}

// roomForQuote returns the quote's chat room, or nil when none was opened.
func (s *service) roomForQuote(ctx context.Context, repo Repository, quoteID uuid.UUID) (*models.ChatRoom, error) {
	room, err := repo.FindChatRoomByQuote(ctx, quoteID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, writeErr(err, "load chat room")
	}
	return room, nil
}

// refundHold returns the hold taken when the quote was submitted, sized from
// the rate stored on the quote.
func (s *service) refundHold(ctx context.Context, tx *gorm.DB, rfq *models.RFQ, quote *models.Quote, reason string, actor Actor) (int64, error) {
	amount := commission.HoldAmountFor(rfq, quote)
	if amount == 0 {
		return 0, nil
	}
	_, err := s.ledger.Refund(ctx, tx, credits.Movement{
		SupplierID:  quote.SupplierID,
		Amount:      amount,
		Description: reason,
		ReferenceID: uuidPtr(quote.ID),
		Actor:       actor.ref(),
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func quoteLink(id uuid.UUID) string {
	return "/quotes/" + id.String()
}

func orderLink(id uuid.UUID) string {
	return "/orders/" + id.String()
}

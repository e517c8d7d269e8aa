package deals

import (
	"context"
	"fmt"
	"time"

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

// SubmitQuoteInput is a supplier's bid on an RFQ. The quantity always comes
// from the RFQ.
type SubmitQuoteInput struct {
	Actor        Actor
	RFQID        uuid.UUID
	UnitPrice    int64
	DeliveryDate time.Time
	Note         *string
}

// SubmitQuoteResult carries the created quote, its chat room and the hold.
type SubmitQuoteResult struct {
	Quote      *models.Quote
	ChatRoom   *models.ChatRoom
	HeldAmount int64
}

// AcceptQuoteResult carries the order produced by an acceptance.
type AcceptQuoteResult struct {
	Quote          *models.Quote
	Order          *models.Order
	RejectedQuotes []uuid.UUID
	RefundedAmount int64
}

// RejectQuoteResult reports the hold returned to the supplier.
type RejectQuoteResult struct {
	Quote          *models.Quote
	RefundedAmount int64
}

// quoteTotal is unitPrice × quantity, refused when it would exceed MaxAmount.
func quoteTotal(unitPrice, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "rfq quantity must be positive")
	}
	if unitPrice > MaxAmount/quantity {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quote total exceeds the supported amount").
			WithDetails(map[string]int64{"unit_price": unitPrice, "quantity": quantity, "max_total": MaxAmount})
	}
	return unitPrice * quantity, nil
}

func (s *service) SubmitQuote(ctx context.Context, input SubmitQuoteInput) (*SubmitQuoteResult, error) {
	if err := requireRole(input.Actor, enums.ActorRoleSupplier); err != nil {
		return nil, err
	}
	if input.UnitPrice <= 0 || input.UnitPrice > MaxAmount {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unit_price must be between 1 and %d", MaxAmount)
	}
	if input.DeliveryDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery_date is required")
	}

	supplierID := input.Actor.UserID
	var (
		result SubmitQuoteResult
		rfq    *models.RFQ
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		rfq, err = repo.FindRFQ(ctx, input.RFQID)
		if err != nil {
			return loadErr(err, "rfq")
		}
		if rfq.Status != enums.RFQStatusOpen {
			return pkgerrors.New(pkgerrors.CodeRFQClosed, "rfq is not accepting quotes").
				WithDetails(map[string]any{"status": rfq.Status})
		}
		if rfq.BuyerID == supplierID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cannot quote on own rfq")
		}
		if rfq.IsTargeted && (rfq.TargetSupplierID == nil || *rfq.TargetSupplierID != supplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "rfq is targeted at another supplier")
		}
		exists, err := repo.QuoteExists(ctx, rfq.ID, supplierID)
		if err != nil {
			return writeErr(err, "check existing quote")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeDuplicateQuote, "quote already submitted")
		}

		total, err := quoteTotal(input.UnitPrice, rfq.Quantity)
		if err != nil {
			return err
		}

		rate, err := s.policy.RateFor(ctx, tx, rfq.BuyerID, supplierID)
		if err != nil {
			return err
		}

		quote := &models.Quote{
			ID:             uuid.New(),
			RFQID:          rfq.ID,
			SupplierID:     supplierID,
			UnitPrice:      input.UnitPrice,
			Quantity:       rfq.Quantity,
			TotalPrice:     total,
			DeliveryDate:   input.DeliveryDate.UTC(),
			Note:           input.Note,
			CommissionRate: rate,
			Status:         enums.QuoteStatusPending,
		}
		held := commission.HoldAmountFor(rfq, quote)
		if _, err := s.ledger.Hold(ctx, tx, credits.Movement{
			SupplierID:  supplierID,
			Amount:      held,
			Description: fmt.Sprintf("quote hold for rfq %s", rfq.ID),
			ReferenceID: uuidPtr(quote.ID),
			Actor:       input.Actor.ref(),
		}); err != nil {
			return err
		}

		if err := repo.CreateQuote(ctx, quote); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicateQuote, "quote already submitted")
			}
			return writeErr(err, "create quote")
		}

		room := &models.ChatRoom{
			QuoteID:    quote.ID,
			RFQID:      rfq.ID,
			BuyerID:    rfq.BuyerID,
			SupplierID: supplierID,
			Status:     enums.ChatRoomStatusActive,
			ExpiresAt:  s.now().Add(s.window),
		}
		if err := repo.CreateChatRoom(ctx, room); err != nil {
			return writeErr(err, "create chat room")
		}

		result = SubmitQuoteResult{Quote: quote, ChatRoom: room, HeldAmount: held}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteSubmitted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.QuoteSubmittedEvent{
				QuoteID:        quote.ID,
				RFQID:          rfq.ID,
				ChatRoomID:     room.ID,
				BuyerID:        rfq.BuyerID,
				SupplierID:     supplierID,
				TotalPrice:     quote.TotalPrice,
				CommissionRate: rate.String(),
				HeldAmount:     held,
				ExpiresAt:      room.ExpiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx,
		notifications.Notice{
			UserID:  rfq.BuyerID,
			Type:    enums.NotificationTypeQuoteReceived,
			Title:   "New quote received",
			Message: fmt.Sprintf("A supplier quoted %d for %q.", result.Quote.TotalPrice, rfq.Title),
			Link:    quoteLink(result.Quote.ID),
		},
		notifications.Notice{
			UserID:  supplierID,
			Type:    enums.NotificationTypeQuoteSubmitted,
			Title:   "Quote submitted",
			Message: fmt.Sprintf("%d credits are held until the negotiation closes.", result.HeldAmount),
			Link:    quoteLink(result.Quote.ID),
		},
	)
	return &result, nil
}

// AcceptQuote confirms the deal: the quote is accepted, the RFQ closes, every
// other pending quote is rejected with its hold refunded, and one order is
// created. The accepted quote's hold becomes the supplier fee.
func (s *service) AcceptQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*AcceptQuoteResult, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer); err != nil {
		return nil, err
	}

	var (
		result  AcceptQuoteResult
		rfq     *models.RFQ
		notices []notifications.Notice
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result, notices = AcceptQuoteResult{}, nil
		repo := s.repo.WithTx(tx)
		quote, loaded, err := s.loadOwnedQuote(ctx, repo, quoteID, actor)
		if err != nil {
			return err
		}
		rfq = loaded
		if quote.Status != enums.QuoteStatusPending {
			return alreadyProcessed("quote", quote.Status)
		}

		room, err := s.roomForQuote(ctx, repo, quote.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if room != nil {
			changed, err := repo.TransitionChatRoom(ctx, room.ID, enums.ChatRoomStatusActive, enums.ChatRoomStatusDealConfirmed, now)
			if err != nil {
				return writeErr(err, "confirm chat room")
			}
			if !changed {
				return alreadyProcessed("negotiation", room.Status)
			}
			room.Status = enums.ChatRoomStatusDealConfirmed
		}

		changed, err := repo.TransitionQuote(ctx, quote.ID, enums.QuoteStatusAccepted)
		if err != nil {
			return writeErr(err, "accept quote")
		}
		if !changed {
			return alreadyProcessed("quote", quote.Status)
		}
		quote.Status = enums.QuoteStatusAccepted

		changed, err = repo.TransitionRFQ(ctx, rfq.ID,
			[]enums.RFQStatus{enums.RFQStatusOpen, enums.RFQStatusInProgress}, enums.RFQStatusClosed)
		if err != nil {
			return writeErr(err, "close rfq")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeRFQClosed, "rfq is no longer open").
				WithDetails(map[string]any{"status": rfq.Status})
		}
		rfq.Status = enums.RFQStatusClosed

		siblings, err := repo.ListPendingQuotes(ctx, rfq.ID, quote.ID)
		if err != nil {
			return writeErr(err, "list pending quotes")
		}
		for i := range siblings {
			sibling := &siblings[i]
			siblingRoom, err := s.roomForQuote(ctx, repo, sibling.ID)
			if err != nil {
				return err
			}
			outcome, err := s.closeQuote(ctx, tx, rfq, sibling, siblingRoom, enums.QuoteStatusRejected, enums.ChatRoomStatusExpired, actor,
				fmt.Sprintf("rfq %s awarded to another supplier", rfq.ID))
			if err != nil {
				return err
			}
			if !outcome.QuoteClosed {
				continue
			}
			result.RejectedQuotes = append(result.RejectedQuotes, sibling.ID)
			result.RefundedAmount += outcome.Refunded
			notices = append(notices, notifications.Notice{
				UserID:  sibling.SupplierID,
				Type:    enums.NotificationTypeQuoteRejected,
				Title:   "Quote not selected",
				Message: fmt.Sprintf("%q was awarded to another supplier. %d credits were returned.", rfq.Title, outcome.Refunded),
				Link:    quoteLink(sibling.ID),
			})
		}

		if room == nil {
			room = &models.ChatRoom{
				QuoteID:    quote.ID,
				RFQID:      rfq.ID,
				BuyerID:    rfq.BuyerID,
				SupplierID: quote.SupplierID,
				Status:     enums.ChatRoomStatusDealConfirmed,
				ExpiresAt:  now,
			}
			if err := repo.CreateChatRoom(ctx, room); err != nil {
				return writeErr(err, "create chat room")
			}
		}

		exists, err := repo.OrderExistsForChatRoom(ctx, room.ID)
		if err != nil {
			return writeErr(err, "check existing order")
		}
		if exists {
			return alreadyProcessed("order", enums.OrderStatusPreparing)
		}

		fee := commission.HoldAmountFor(rfq, quote)
		order := &models.Order{
			RFQID:            rfq.ID,
			QuoteID:          quote.ID,
			ChatRoomID:       room.ID,
			BuyerID:          rfq.BuyerID,
			SupplierID:       quote.SupplierID,
			ProductAmount:    quote.TotalPrice,
			TotalAmount:      quote.TotalPrice,
			CommissionAmount: fee,
			SupplierFee:      fee,
			Status:           enums.OrderStatusPreparing,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return alreadyProcessed("order", enums.OrderStatusPreparing)
			}
			return writeErr(err, "create order")
		}

		result.Quote = quote
		result.Order = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteAccepted,
			AggregateType: enums.AggregateQuote,
			AggregateID:   quote.ID,
			Actor:         actor.ref(),
			Data: payloads.QuoteAcceptedEvent{
				QuoteID:    quote.ID,
				RFQID:      rfq.ID,
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				SupplierID: order.SupplierID,
				Total:      order.TotalAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	notices = append(notices, notifications.Notice{
		UserID:  result.Order.SupplierID,
		Type:    enums.NotificationTypeQuoteAccepted,
		Title:   "Quote accepted",
		Message: fmt.Sprintf("Your quote for %q was accepted. Prepare the order.", rfq.Title),
		Link:    orderLink(result.Order.ID),
	})
	s.notifier.Notify(ctx, notices...)
	return &result, nil
}

func (s *service) RejectQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*RejectQuoteResult, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer); err != nil {
		return nil, err
	}

	var (
		result RejectQuoteResult
		rfq    *models.RFQ
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		quote, loaded, err := s.loadOwnedQuote(ctx, repo, quoteID, actor)
		if err != nil {
			return err
		}
		rfq = loaded
		if quote.Status != enums.QuoteStatusPending {
			return alreadyProcessed("quote", quote.Status)
		}
		room, err := s.roomForQuote(ctx, repo, quote.ID)
		if err != nil {
			return err
		}
		outcome, err := s.closeQuote(ctx, tx, rfq, quote, room, enums.QuoteStatusRejected, enums.ChatRoomStatusClosed, actor,
			fmt.Sprintf("quote %s rejected", quote.ID))
		if err != nil {
			return err
		}
		if !outcome.QuoteClosed {
			return alreadyProcessed("quote", quote.Status)
		}
		result = RejectQuoteResult{Quote: quote, RefundedAmount: outcome.Refunded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notifications.Notice{
		UserID:  result.Quote.SupplierID,
		Type:    enums.NotificationTypeQuoteRejected,
		Title:   "Quote rejected",
		Message: fmt.Sprintf("The buyer declined your quote for %q. %d credits were returned.", rfq.Title, result.RefundedAmount),
		Link:    quoteLink(result.Quote.ID),
	})
	return &result, nil
}

func (s *service) GetQuote(ctx context.Context, quoteID uuid.UUID, actor Actor) (*models.Quote, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	quote, err := s.repo.FindQuote(ctx, quoteID)
	if err != nil {
		return nil, loadErr(err, "quote")
	}
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return quote, nil
	case enums.ActorRoleSupplier:
		if quote.SupplierID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another supplier")
		}
		return quote, nil
	}
	rfq, err := s.repo.FindRFQ(ctx, quote.RFQID)
	if err != nil {
		return nil, loadErr(err, "rfq")
	}
	if rfq.BuyerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another buyer's rfq")
	}
	return quote, nil
}

// loadOwnedQuote loads a quote and its RFQ, requiring the actor to own the RFQ.
func (s *service) loadOwnedQuote(ctx context.Context, repo Repository, quoteID uuid.UUID, actor Actor) (*models.Quote, *models.RFQ, error) {
	quote, err := repo.FindQuote(ctx, quoteID)
	if err != nil {
		return nil, nil, loadErr(err, "quote")
	}
	rfq, err := repo.FindRFQ(ctx, quote.RFQID)
	if err != nil {
		return nil, nil, loadErr(err, "rfq")
	}
	if rfq.BuyerID != actor.UserID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "rfq belongs to another buyer")
	}
	return quote, rfq, nil
}

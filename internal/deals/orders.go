package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const adminCancelReason = "cancelled by operator"

// AdvanceOrderInput requests a single order status change.
type AdvanceOrderInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Target  enums.OrderStatus
}

// AdvanceOrderResult carries the updated order and, when the new status is
// invoiced, the invoice issued after commit.
type AdvanceOrderResult struct {
	Order    *models.Order
	Refunded int64
	Invoice  *models.Invoice
}

// MarkPaidInput is a gateway settlement for an order.
type MarkPaidInput struct {
	OrderID       uuid.UUID
	PaymentKey    string
	PaymentMethod string
	Amount        int64
	PaidAt        time.Time
	Actor         Actor
}

// CancelPaidOrderInput reverses a settled payment.
type CancelPaidOrderInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

// CancelOrderResult reports the supplier fee returned on cancellation.
type CancelOrderResult struct {
	Order    *models.Order
	Refunded int64
}

func (s *service) AdvanceOrder(ctx context.Context, input AdvanceOrderInput) (*AdvanceOrderResult, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": input.Target})
	}

	var (
		result AdvanceOrderResult
		from   enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return loadErr(err, "order")
		}
		if err := checkOrderParty(order, input.Actor); err != nil {
			return err
		}
		from = order.Status
		if !CanTransition(input.Actor.Role, from, input.Target) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order transition not allowed").
				WithDetails(map[string]any{"from": from, "to": input.Target, "role": input.Actor.Role})
		}

		now := s.now()
		var changes map[string]any
		if input.Target == enums.OrderStatusCancelled {
			if order.PaymentKey != nil {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "paid orders are cancelled through the payment gateway").
					WithDetails(map[string]any{"from": from, "to": input.Target})
			}
			changes = map[string]any{"cancelled_at": now, "cancel_reason": adminCancelReason}
		}

		changed, err := repo.TransitionOrder(ctx, order.ID, []enums.OrderStatus{from}, input.Target, changes)
		if err != nil {
			return writeErr(err, "transition order")
		}
		if !changed {
			return alreadyProcessed("order", from)
		}
		order.Status = input.Target

		if input.Target == enums.OrderStatusCancelled {
			reason := adminCancelReason
			order.CancelledAt = &now
			order.CancelReason = &reason
			result.Refunded, err = s.returnSupplierFee(ctx, tx, order, reason, input.Actor)
			if err != nil {
				return err
			}
		}

		result.Order = order
		return s.emitStatusChanged(ctx, tx, order, from, input.Actor)
	})
	if err != nil {
		return nil, err
	}

	if input.Target.RequiresInvoice() {
		invoice, err := s.invoices.Issue(ctx, result.Order.ID)
		if err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, result.Order.ID.String()), "invoice issuance failed", err)
		} else {
			result.Invoice = invoice
		}
	}

	s.notifier.Notify(ctx, statusNotices(result.Order, from, input.Actor)...)
	return &result, nil
}

// MarkPaid records a gateway settlement. Replaying the same payment key is a
// no-op that returns the paid order.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	if input.PaymentKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment key is required")
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()

	var (
		order    *models.Order
		from     enums.OrderStatus
		replayed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return loadErr(err, "order")
		}
		if order.PaymentKey != nil {
			if *order.PaymentKey == input.PaymentKey {
				replayed = true
				return nil
			}
			return alreadyProcessed("order payment", order.Status)
		}
		if input.Amount != order.TotalAmount {
			return pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order total").
				WithDetails(map[string]any{"expected": order.TotalAmount, "actual": input.Amount})
		}
		if !statusIn(order.Status, payableStatuses) {
			return alreadyProcessed("order", order.Status)
		}

		from = order.Status
		changes := map[string]any{
			"payment_key": input.PaymentKey,
			"paid_at":     paidAt,
		}
		if input.PaymentMethod != "" {
			changes["payment_method"] = input.PaymentMethod
		}
		changed, err := repo.TransitionOrder(ctx, order.ID, payableStatuses, enums.OrderStatusPaid, changes)
		if err != nil {
			return writeErr(err, "mark order paid")
		}
		if !changed {
			return alreadyProcessed("order", order.Status)
		}
		order.Status = enums.OrderStatusPaid
		order.PaymentKey = &input.PaymentKey
		if input.PaymentMethod != "" {
			order.PaymentMethod = &input.PaymentMethod
		}
		order.PaidAt = &paidAt

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				PaymentKey:    input.PaymentKey,
				PaymentMethod: input.PaymentMethod,
				Amount:        input.Amount,
				PaidAt:        paidAt,
			},
		}); err != nil {
			return err
		}
		return s.emitStatusChanged(ctx, tx, order, from, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return order, nil
	}

	s.notifier.Notify(ctx, notifications.Notice{
		UserID:  order.SupplierID,
		Type:    enums.NotificationTypePaymentConfirmed,
		Title:   "Payment received",
		Message: fmt.Sprintf("The buyer paid %d. Resume preparing the order.", order.TotalAmount),
		Link:    orderLink(order.ID),
	})
	return order, nil
}

// CancelPaidOrder reverses a settled order and returns the supplier fee.
// A zero Actor is a gateway-initiated cancellation, which may reverse any
// paid order that has not completed.
func (s *service) CancelPaidOrder(ctx context.Context, input CancelPaidOrderInput) (*CancelOrderResult, error) {
	reason := input.Reason
	if reason == "" {
		reason = "payment cancelled"
	}

	var result CancelOrderResult
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return loadErr(err, "order")
		}
		if input.Actor.UserID != uuid.Nil {
			if input.Actor.Role == enums.ActorRoleSupplier {
				return pkgerrors.New(pkgerrors.CodeForbidden, "suppliers cannot cancel payments")
			}
			if err := checkOrderParty(order, input.Actor); err != nil {
				return err
			}
		}
		if order.PaymentKey == nil {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no settled payment").
				WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusCancelled})
		}
		reversible := refundableStatuses
		if input.Actor.UserID == uuid.Nil {
			reversible = gatewayReversibleStatuses
		}
		if !statusIn(order.Status, reversible) {
			return alreadyProcessed("order", order.Status)
		}

		from = order.Status
		now := s.now()
		changed, err := repo.TransitionOrder(ctx, order.ID, reversible, enums.OrderStatusCancelled,
			map[string]any{"cancelled_at": now, "cancel_reason": reason})
		if err != nil {
			return writeErr(err, "cancel order")
		}
		if !changed {
			return alreadyProcessed("order", order.Status)
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = &reason

		result.Order = order
		result.Refunded, err = s.returnSupplierFee(ctx, tx, order, reason, input.Actor)
		if err != nil {
			return err
		}
		return s.emitStatusChanged(ctx, tx, order, from, input.Actor)
	})
	if err != nil {
		return nil, err
	}

	order := result.Order
	s.notifier.Notify(ctx,
		notifications.Notice{
			UserID:  order.SupplierID,
			Type:    enums.NotificationTypePaymentCancelled,
			Title:   "Order cancelled",
			Message: fmt.Sprintf("The payment was cancelled. %d credits were returned.", result.Refunded),
			Link:    orderLink(order.ID),
		},
		notifications.Notice{
			UserID:  order.BuyerID,
			Type:    enums.NotificationTypePaymentCancelled,
			Title:   "Payment cancelled",
			Message: fmt.Sprintf("Your payment of %d was cancelled.", order.TotalAmount),
			Link:    orderLink(order.ID),
		},
	)
	return &result, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order")
	}
	if err := checkOrderParty(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func checkOrderParty(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID == actor.UserID {
			return nil
		}
	case enums.ActorRoleSupplier:
		if order.SupplierID == actor.UserID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another party")
}

func (s *service) returnSupplierFee(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, actor Actor) (int64, error) {
	if order.SupplierFee <= 0 {
		return 0, nil
	}
	_, err := s.ledger.Refund(ctx, tx, credits.Movement{
		SupplierID:  order.SupplierID,
		Amount:      order.SupplierFee,
		Description: fmt.Sprintf("order %s cancelled: %s", order.ID, reason),
		ReferenceID: uuidPtr(order.ID),
		Actor:       actor.ref(),
	})
	if err != nil {
		return 0, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderCancelledEvent{
			OrderID:        order.ID,
			SupplierID:     order.SupplierID,
			Reason:         reason,
			RefundedAmount: order.SupplierFee,
		},
	}); err != nil {
		return 0, err
	}
	return order.SupplierFee, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, actor Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			SupplierID: order.SupplierID,
			From:       from,
			To:         order.Status,
			ActorRole:  actor.Role,
		},
	})
}

// statusNotices tells the other party about a status change.
func statusNotices(order *models.Order, from enums.OrderStatus, actor Actor) []notifications.Notice {
	message := fmt.Sprintf("Order moved from %s to %s.", from, order.Status)
	link := orderLink(order.ID)
	notice := func(userID uuid.UUID) notifications.Notice {
		return notifications.Notice{
			UserID:  userID,
			Type:    enums.NotificationTypeOrderStatus,
			Title:   "Order updated",
			Message: message,
			Link:    link,
		}
	}
	switch actor.Role {
	case enums.ActorRoleBuyer:
		return []notifications.Notice{notice(order.SupplierID)}
	case enums.ActorRoleSupplier:
		return []notifications.Notice{notice(order.BuyerID)}
	default:
		return []notifications.Notice{notice(order.BuyerID), notice(order.SupplierID)}
	}
}

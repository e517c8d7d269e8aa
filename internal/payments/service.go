// Package payments confirms and cancels order payments through the gateway
// and applies gateway webhooks to orders.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/angelmondragon/rfqmarket-backend/pkg/gateway"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	operationConfirm = "confirm"
	operationCancel  = "cancel"
)

// Gateway is the outbound payment API.
type Gateway interface {
	Confirm(ctx context.Context, req gateway.ConfirmRequest) (*gateway.Payment, error)
	Cancel(ctx context.Context, req gateway.CancelRequest) (*gateway.Payment, error)
}

// Orders is the part of the deal state machine payments drive.
type Orders interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor deals.Actor) (*models.Order, error)
	MarkPaid(ctx context.Context, input deals.MarkPaidInput) (*models.Order, error)
	CancelPaidOrder(ctx context.Context, input deals.CancelPaidOrderInput) (*deals.CancelOrderResult, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// ConfirmInput is a buyer's request to settle an order.
type ConfirmInput struct {
	Actor          deals.Actor
	OrderID        uuid.UUID
	PaymentKey     string
	Amount         int64
	IdempotencyKey string
}

// ConfirmResult reports the order and what the gateway said about the payment.
type ConfirmResult struct {
	Order         *models.Order       `json:"order"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// CancelInput requests a full reversal of a settled order.
type CancelInput struct {
	Actor          deals.Actor
	OrderID        uuid.UUID
	Reason         string
	IdempotencyKey string
}

// Service is the payment adapter.
type Service interface {
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	Cancel(ctx context.Context, input CancelInput) (*deals.CancelOrderResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

// ServiceParams wires the payment adapter.
type ServiceParams struct {
	Gateway       Gateway
	Orders        Orders
	Guard         eventGuard
	WebhookSecret string
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
}

type service struct {
	gateway       Gateway
	orders        Orders
	guard         eventGuard
	webhookSecret []byte
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("webhook guard required")
	}
	if strings.TrimSpace(params.WebhookSecret) == "" {
		return nil, fmt.Errorf("webhook secret required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		gateway:       params.Gateway,
		orders:        params.Orders,
		guard:         params.Guard,
		webhookSecret: []byte(params.WebhookSecret),
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	result, err := s.confirm(ctx, input)
	s.metrics.IncOperation(operationConfirm, outcomeOf(err))
	return result, err
}

func (s *service) confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if strings.TrimSpace(input.PaymentKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_key is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Actor.Role != enums.ActorRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer role required")
	}

	order, err := s.orders.GetOrder(ctx, input.OrderID, input.Actor)
	if err != nil {
		return nil, err
	}
	if input.Amount != order.TotalAmount {
		return nil, pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order total").
			WithDetails(map[string]any{"expected": order.TotalAmount, "actual": input.Amount})
	}
	if order.PaymentKey != nil {
		if *order.PaymentKey == input.PaymentKey {
			return &ConfirmResult{Order: order, PaymentStatus: enums.PaymentStatusDone}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order already paid").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusPreparing {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order is not payable").
			WithDetails(map[string]any{"status": order.Status})
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	payment, err := s.gateway.Confirm(ctx, gateway.ConfirmRequest{
		PaymentKey:     input.PaymentKey,
		OrderID:        order.ID.String(),
		Amount:         input.Amount,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsSettled() {
		// Virtual account payments settle later through the deposit webhook.
		s.logg.Info(s.logg.WithField(ctx, "payment_status", payment.Status), "payment confirmed without settlement")
		return &ConfirmResult{Order: order, PaymentStatus: payment.Status}, nil
	}

	paid, err := s.orders.MarkPaid(ctx, deals.MarkPaidInput{
		OrderID:       order.ID,
		PaymentKey:    input.PaymentKey,
		PaymentMethod: payment.Method,
		Amount:        input.Amount,
		PaidAt:        payment.ApprovedTime(),
		Actor:         input.Actor,
	})
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Order: paid, PaymentStatus: payment.Status}, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*deals.CancelOrderResult, error) {
	result, err := s.cancel(ctx, input)
	s.metrics.IncOperation(operationCancel, outcomeOf(err))
	return result, err
}

func (s *service) cancel(ctx context.Context, input CancelInput) (*deals.CancelOrderResult, error) {
	if input.Actor.Role != enums.ActorRoleBuyer && input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer or admin role required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	order, err := s.orders.GetOrder(ctx, input.OrderID, input.Actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentKey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no settled payment").
			WithDetails(map[string]any{"from": order.Status, "to": enums.OrderStatusCancelled})
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusPreparing {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order is not cancellable").
			WithDetails(map[string]any{"status": order.Status})
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if _, err := s.gateway.Cancel(ctx, gateway.CancelRequest{
		PaymentKey:     *order.PaymentKey,
		Reason:         reason,
		IdempotencyKey: input.IdempotencyKey,
	}); err != nil {
		return nil, err
	}

	return s.orders.CancelPaidOrder(ctx, deals.CancelPaidOrderInput{
		OrderID: order.ID,
		Reason:  reason,
		Actor:   input.Actor,
	})
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}

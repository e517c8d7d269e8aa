package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/google/uuid"
)

const gatewayCancelReason = "cancelled at payment gateway"

// WebhookEvent is a gateway delivery.
type WebhookEvent struct {
	EventID   string                    `json:"eventId,omitempty"`
	EventType enums.PaymentWebhookEvent `json:"eventType"`
	CreatedAt string                    `json:"createdAt"`
	Data      WebhookPayment            `json:"data"`
}

// WebhookPayment is the payment snapshot carried by a delivery.
type WebhookPayment struct {
	PaymentKey   string              `json:"paymentKey"`
	OrderID      string              `json:"orderId"`
	Status       enums.PaymentStatus `json:"status"`
	Method       string              `json:"method"`
	TotalAmount  int64               `json:"totalAmount"`
	ApprovedAt   string              `json:"approvedAt,omitempty"`
	CancelReason string              `json:"cancelReason,omitempty"`
}

// VerifySignature checks a hex HMAC-SHA256 of body in constant time.
func VerifySignature(body []byte, secret []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || len(secret) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// HandleWebhook verifies, dedupes and applies a gateway delivery. Callers
// acknowledge the delivery whatever this returns.
func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifySignature(body, s.webhookSecret, signature) {
		s.metrics.IncWebhook("unknown", "invalid_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.IncWebhook("unknown", "malformed")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook")
	}
	eventType := string(event.EventType)

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}
	seen, err := s.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		s.metrics.IncWebhook(eventType, "error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		s.metrics.IncWebhook(eventType, "duplicate")
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		if ferr := s.guard.Forget(ctx, eventID); ferr != nil {
			s.logg.Error(s.logg.WithField(ctx, "webhook_event_id", eventID), "release webhook dedupe key failed", ferr)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			s.metrics.IncWebhook(eventType, "conflict")
		} else {
			s.metrics.IncWebhook(eventType, "error")
		}
		return err
	}
	s.metrics.IncWebhook(eventType, "processed")
	return nil
}

func (s *service) dispatch(ctx context.Context, event WebhookEvent) error {
	switch event.EventType {
	case enums.PaymentWebhookCompleted, enums.PaymentWebhookVirtualAccountDeposited:
		return s.settle(ctx, event.Data)
	case enums.PaymentWebhookCanceled:
		return s.reverse(ctx, event.Data)
	case enums.PaymentWebhookStatusChanged:
		switch {
		case event.Data.Status.IsSettled():
			return s.settle(ctx, event.Data)
		case event.Data.Status.IsCanceled():
			return s.reverse(ctx, event.Data)
		}
		return nil
	default:
		s.logg.Info(s.logg.WithField(ctx, "event_type", event.EventType), "ignoring webhook event")
		return nil
	}
}

func (s *service) settle(ctx context.Context, payment WebhookPayment) error {
	orderID, err := uuid.Parse(payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id in webhook")
	}
	var paidAt time.Time
	if payment.ApprovedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, payment.ApprovedAt); err == nil {
			paidAt = parsed.UTC()
		}
	}
	_, err = s.orders.MarkPaid(ctx, deals.MarkPaidInput{
		OrderID:       orderID,
		PaymentKey:    payment.PaymentKey,
		PaymentMethod: payment.Method,
		Amount:        payment.TotalAmount,
		PaidAt:        paidAt,
	})
	return err
}

func (s *service) reverse(ctx context.Context, payment WebhookPayment) error {
	orderID, err := uuid.Parse(payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id in webhook")
	}
	reason := payment.CancelReason
	if reason == "" {
		reason = gatewayCancelReason
	}
	_, err = s.orders.CancelPaidOrder(ctx, deals.CancelPaidOrderInput{OrderID: orderID, Reason: reason})
	if err == nil || alreadyCancelled(err) {
		return nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "gateway cancelled payment for an order that cannot be reversed", err)
	}
	return err
}

// alreadyCancelled reports whether err says the order is cancelled already,
// which is the echo of our own Cancel call.
func alreadyCancelled(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeAlreadyProcessed {
		return false
	}
	details, _ := typed.Details().(map[string]any)
	status, _ := details["status"].(enums.OrderStatus)
	return status == enums.OrderStatusCancelled
}

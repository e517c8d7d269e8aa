package invoices

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// BackfillConsumer names the consumer's idempotency scope.
const BackfillConsumer = "invoice-backfill"

type processedGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer issues invoices for settled orders seen on the domain topic. The
// API issues invoices synchronously after a status change; this catches the
// orders where that best-effort attempt failed.
type Consumer struct {
	issuer       Service
	subscription receiver
	guard        processedGuard
	logg         *logger.Logger
}

// NewConsumer builds the invoice backfill consumer.
func NewConsumer(issuer Service, subscription *pubsub.Subscriber, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	return newConsumer(issuer, subscription, guard, logg)
}

func newConsumer(issuer Service, subscription receiver, guard processedGuard, logg *logger.Logger) (*Consumer, error) {
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{issuer: issuer, subscription: subscription, guard: guard, logg: logg}, nil
}

// Run blocks until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := attrs["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})
	if eventType != string(enums.EventOrderStatusChanged) {
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}
	var payload payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}
	if !payload.To.RequiresInvoice() {
		return true
	}

	already, err := c.guard.CheckAndMark(ctx, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		return true
	}

	logCtx = c.logg.WithOrderID(logCtx, payload.OrderID.String())
	invoice, err := c.issuer.Issue(ctx, payload.OrderID)
	if err != nil {
		c.logg.Error(logCtx, "invoice backfill failed", err)
		_ = c.guard.Forget(ctx, eventID.String())
		return false
	}
	c.logg.Info(c.logg.WithField(logCtx, "invoice_number", invoice.Number), "invoice ensured")
	return true
}

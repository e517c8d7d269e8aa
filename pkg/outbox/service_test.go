package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
)

func paidEvent(orderID uuid.UUID) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: uuid.New(), Role: enums.ActorRoleBuyer},
		Data:          payloads.OrderStatusChangedEvent{OrderID: orderID, From: enums.OrderStatusPending, To: enums.OrderStatusPaid},
	}
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	fixed := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	orderID := uuid.New()
	require.NoError(t, svc.Emit(context.Background(), conn, paidEvent(orderID)))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.False(t, rows[0].Published())

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, currentEnvelopeVersion, envelope.Version)
	assert.True(t, envelope.OccurredAt.Equal(fixed))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.ActorRoleBuyer, envelope.Actor.Role)
	_, err := uuid.Parse(envelope.EventID)
	assert.NoError(t, err)

	var data payloads.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, enums.OrderStatusPaid, data.To)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	require.Error(t, svc.Emit(ctx, nil, paidEvent(uuid.New())), "transaction is mandatory")

	cases := map[string]func(*DomainEvent){
		"unknown event type": func(e *DomainEvent) { e.EventType = "order_teleported" },
		"unknown aggregate":  func(e *DomainEvent) { e.AggregateType = "warehouse" },
		"nil aggregate id":   func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"no data":            func(e *DomainEvent) { e.Data = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			event := paidEvent(uuid.New())
			mutate(&event)
			assert.Error(t, svc.Emit(ctx, conn, event))
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, paidEvent(uuid.New())))
		return errors.New("order update failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

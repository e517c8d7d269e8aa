package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rfqmarket-backend/pkg/outbox/registry"
)

func TestProcessBatchPublishesWithOrderingKey(t *testing.T) {
	event := orderStatusEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	relay := newTestRelay(t, repo, pub, &fakeDLQRepo{}, 5)

	seen, err := relay.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.published)

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, "order:"+event.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, string(enums.EventOrderStatusChanged), msg.Attributes["event_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.NotEmpty(t, msg.Attributes["event_id"])
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
}

func TestProcessBatchRetriesTransientFailureAndResumesKey(t *testing.T) {
	failing := orderStatusEvent(t, 0)
	ok := orderStatusEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{failing, ok}}
	pub := &fakePublisher{errs: []error{errors.New("unavailable"), nil}}
	dlq := &fakeDLQRepo{}
	relay := newTestRelay(t, repo, pub, dlq, 5)

	_, err := relay.processBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{failing.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{ok.ID}, repo.published)
	assert.Equal(t, []string{orderingKey(failing)}, pub.resumed)
	assert.Empty(t, dlq.entries)
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := orderStatusEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{errs: []error{errors.New("deadline exceeded")}}
	dlq := &fakeDLQRepo{}
	relay := newTestRelay(t, repo, pub, dlq, 2)

	_, err := relay.processBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "max publish attempts")
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchDeadLettersUnresolvableRows(t *testing.T) {
	event := orderStatusEvent(t, 0)
	event.AggregateType = enums.AggregateQuote
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	dlq := &fakeDLQRepo{}
	relay := newTestRelay(t, repo, pub, dlq, 5)

	_, err := relay.processBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, pub.sent)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
	assert.JSONEq(t, string(event.Payload), string(dlq.entries[0].Payload))
}

func TestProcessBatchPropagatesRepositoryErrors(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("relation does not exist")}
	relay := newTestRelay(t, repo, &fakePublisher{}, &fakeDLQRepo{}, 5)

	_, err := relay.processBatch(context.Background())
	require.ErrorIs(t, err, repo.fetchErr)
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, time.Second, nextBackoff(base, base, maxBackoff))
	assert.Equal(t, base*2, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))
}

func newTestRelay(t *testing.T, repo outboxRepository, pub topicPublisher, dlq dlqRepository, maxAttempts int) *Relay {
	t.Helper()
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: "rfq-domain-events"})
	require.NoError(t, err)
	relay, err := NewRelay(RelayParams{
		Config:        config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: maxAttempts},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:            fakeDB{},
		PubSub:        fakeDB{},
		Repository:    repo,
		Registry:      eventRegistry,
		Publisher:     pub,
		DLQRepository: dlq,
	})
	require.NoError(t, err)
	return relay
}

func orderStatusEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderStatusChangedEvent{
		OrderID:    orderID,
		BuyerID:    uuid.New(),
		SupplierID: uuid.New(),
		From:       enums.OrderStatusDelivered,
		To:         enums.OrderStatusConfirmed,
		ActorRole:  enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelope,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, f.fetchErr
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePublisher struct {
	errs    []error
	sent    []*gcppubsub.Message
	resumed []string
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return fakeResult{err: err}
}

func (f *fakePublisher) Resume(key string) {
	f.resumed = append(f.resumed, key)
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

package cron

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

type lapsedRoom struct {
	id       uuid.UUID
	refund   int64
	lostRace bool
	err      error
}

// fakeExpirer keeps rooms active until ExpireNegotiation succeeds for them.
type fakeExpirer struct {
	rooms     []*lapsedRoom
	active    map[uuid.UUID]*lapsedRoom
	cutoffs   []time.Time
	expireLog []uuid.UUID
	listErr   error
}

func newFakeExpirer(rooms ...*lapsedRoom) *fakeExpirer {
	f := &fakeExpirer{rooms: rooms, active: map[uuid.UUID]*lapsedRoom{}}
	for _, room := range rooms {
		f.active[room.id] = room
	}
	return f
}

func (f *fakeExpirer) ListLapsedNegotiations(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.cutoffs = append(f.cutoffs, now)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []uuid.UUID
	for _, room := range f.rooms {
		if _, ok := f.active[room.id]; ok {
			ids = append(ids, room.id)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (f *fakeExpirer) ExpireNegotiation(_ context.Context, chatRoomID uuid.UUID) (*deals.ExpireResult, error) {
	f.expireLog = append(f.expireLog, chatRoomID)
	room := f.active[chatRoomID]
	if room.err != nil {
		return nil, room.err
	}
	delete(f.active, chatRoomID)
	if room.lostRace {
		return &deals.ExpireResult{ChatRoomID: chatRoomID}, nil
	}
	return &deals.ExpireResult{ChatRoomID: chatRoomID, Expired: true, Refunded: room.refund}, nil
}

func newTestSweeper(t *testing.T, expirer *fakeExpirer, batch int, reg prometheus.Registerer) *NegotiationSweeper {
	t.Helper()
	sweeper, err := NewNegotiationSweeper(NegotiationSweeperParams{
		Logger:    quietLogger(),
		Deals:     expirer,
		Metrics:   metrics.NewSweepMetrics(reg),
		BatchSize: batch,
		Clock:     func() time.Time { return time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return sweeper
}

func TestSweepExpiresAcrossBatches(t *testing.T) {
	rooms := []*lapsedRoom{
		{id: uuid.New(), refund: 30000},
		{id: uuid.New(), refund: 9000},
		{id: uuid.New(), lostRace: true},
		{id: uuid.New(), refund: 1000},
		{id: uuid.New(), refund: 500},
	}
	expirer := newFakeExpirer(rooms...)
	reg := prometheus.NewRegistry()
	sweeper := newTestSweeper(t, expirer, 2, reg)

	summary, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalExpiredRooms)
	assert.Equal(t, 4, summary.ProcessedCount)
	assert.Equal(t, int64(40500), summary.RefundedAmount)
	assert.Zero(t, summary.FailedCount)
	assert.Empty(t, expirer.active)

	for _, cutoff := range expirer.cutoffs {
		assert.True(t, cutoff.Equal(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)), "cutoff must stay fixed for the whole sweep")
	}

	assert.Equal(t, 3, testutil.CollectAndCount(reg))
	expected := []string{
		"rfqmarket_negotiation_expire_failures_total",
		"rfqmarket_negotiation_refunded_credit_total",
		"rfqmarket_negotiations_expired_total",
	}
	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	values := map[string]float64{}
	for _, family := range families {
		names = append(names, family.GetName())
		values[family.GetName()] = family.GetMetric()[0].GetCounter().GetValue()
	}
	sort.Strings(names)
	assert.Equal(t, expected, names)
	assert.Equal(t, float64(4), values["rfqmarket_negotiations_expired_total"])
	assert.Equal(t, float64(40500), values["rfqmarket_negotiation_refunded_credit_total"])
}

func TestSweepCollectsFailuresWithoutStopping(t *testing.T) {
	broken := &lapsedRoom{id: uuid.New(), err: errors.New("db timeout")}
	rooms := []*lapsedRoom{
		broken,
		{id: uuid.New(), refund: 3000},
		{id: uuid.New(), refund: 2000},
	}
	expirer := newFakeExpirer(rooms...)
	sweeper := newTestSweeper(t, expirer, 1, nil)

	summary, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, 3, summary.TotalExpiredRooms)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, int64(5000), summary.RefundedAmount)
	assert.Len(t, expirer.active, 1)
	assert.Contains(t, expirer.active, broken.id)

	attempts := 0
	for _, id := range expirer.expireLog {
		if id == broken.id {
			attempts++
		}
	}
	assert.Equal(t, 1, attempts, "a failing room is attempted once per sweep")
}

func TestSweepReportsListFailure(t *testing.T) {
	expirer := newFakeExpirer()
	expirer.listErr = errors.New("connection refused")
	sweeper := newTestSweeper(t, expirer, 10, nil)

	summary, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, &SweepSummary{}, summary)
	assert.Error(t, sweeper.Run(context.Background()))
}

func TestSweepWithNothingLapsed(t *testing.T) {
	sweeper := newTestSweeper(t, newFakeExpirer(), 10, nil)
	summary, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalExpiredRooms)
	assert.Equal(t, "negotiation-expiry", sweeper.Name())
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/angelmondragon/rfqmarket-backend/pkg/metrics"
)

const defaultSweepBatchSize = 200

type negotiationExpirer interface {
	ListLapsedNegotiations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ExpireNegotiation(ctx context.Context, chatRoomID uuid.UUID) (*deals.ExpireResult, error)
}

// SweepSummary reports one pass over lapsed negotiations. TotalExpiredRooms
// counts the lapsed rooms found; ProcessedCount counts the rooms this pass
// actually moved to expired.
type SweepSummary struct {
	ProcessedCount    int   `json:"processed_count"`
	RefundedAmount    int64 `json:"refunded_amount"`
	TotalExpiredRooms int   `json:"total_expired_rooms"`
	FailedCount       int   `json:"failed_count"`
}

// NegotiationSweeperParams configure the expiration sweeper.
type NegotiationSweeperParams struct {
	Logger    *logger.Logger
	Deals     negotiationExpirer
	Metrics   *metrics.SweepMetrics
	BatchSize int
	Clock     func() time.Time
}

// NegotiationSweeper expires active chat rooms whose window has lapsed and
// refunds the supplier holds through the deal state machine.
type NegotiationSweeper struct {
	logg      *logger.Logger
	deals     negotiationExpirer
	metrics   *metrics.SweepMetrics
	batchSize int
	now       func() time.Time
}

// NewNegotiationSweeper builds the sweeper. It also satisfies Job.
func NewNegotiationSweeper(params NegotiationSweeperParams) (*NegotiationSweeper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Deals == nil {
		return nil, fmt.Errorf("deal service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &NegotiationSweeper{
		logg:      params.Logger,
		deals:     params.Deals,
		metrics:   params.Metrics,
		batchSize: batch,
		now:       clock,
	}, nil
}

func (s *NegotiationSweeper) Name() string { return "negotiation-expiry" }

func (s *NegotiationSweeper) Run(ctx context.Context) error {
	summary, err := s.Sweep(ctx)
	if summary != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"processed_count":     summary.ProcessedCount,
			"refunded_amount":     summary.RefundedAmount,
			"total_expired_rooms": summary.TotalExpiredRooms,
			"failed_count":        summary.FailedCount,
		})
		s.logg.Info(logCtx, "negotiation sweep complete")
	}
	return err
}

// Sweep expires every room that lapsed before the sweep started. A failing
// room is logged and skipped; the combined failures are returned alongside
// the summary.
func (s *NegotiationSweeper) Sweep(ctx context.Context) (*SweepSummary, error) {
	cutoff := s.now()
	summary := &SweepSummary{}
	seen := make(map[uuid.UUID]struct{})
	var errs error

	for {
		// Failed rooms stay active and keep their place at the head of the list.
		limit := s.batchSize + summary.FailedCount
		ids, err := s.deals.ListLapsedNegotiations(ctx, cutoff, limit)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list lapsed negotiations: %w", err))
			break
		}

		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			fresh++
			summary.TotalExpiredRooms++

			result, err := s.deals.ExpireNegotiation(ctx, id)
			if err != nil {
				summary.FailedCount++
				errs = multierr.Append(errs, fmt.Errorf("expire chat room %s: %w", id, err))
				s.logg.Error(s.logg.WithField(ctx, "chat_room_id", id.String()), "expire negotiation failed", err)
				continue
			}
			if result.Expired {
				summary.ProcessedCount++
			}
			summary.RefundedAmount += result.Refunded
		}

		if fresh == 0 || len(ids) < limit {
			break
		}
	}

	s.metrics.Observe(summary.ProcessedCount, summary.RefundedAmount, summary.FailedCount)
	return summary, errs
}

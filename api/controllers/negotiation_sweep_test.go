package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/rfqmarket-backend/internal/cron"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

type sweepFunc func(ctx context.Context) (*cron.SweepSummary, error)

func (f sweepFunc) Sweep(ctx context.Context) (*cron.SweepSummary, error) { return f(ctx) }

func TestAdminSweepNegotiations(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	tests := []struct {
		name   string
		sweep  sweepFunc
		status int
		total  int
	}{
		{
			name: "clean pass",
			sweep: func(context.Context) (*cron.SweepSummary, error) {
				return &cron.SweepSummary{ProcessedCount: 2, RefundedAmount: 39000, TotalExpiredRooms: 2}, nil
			},
			status: http.StatusOK,
			total:  2,
		},
		{
			name: "partial failure still reports",
			sweep: func(context.Context) (*cron.SweepSummary, error) {
				return &cron.SweepSummary{ProcessedCount: 1, TotalExpiredRooms: 2, FailedCount: 1}, errors.New("expire chat room: timeout")
			},
			status: http.StatusOK,
			total:  2,
		},
		{
			name: "listing failed",
			sweep: func(context.Context) (*cron.SweepSummary, error) {
				return &cron.SweepSummary{}, errors.New("connection refused")
			},
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			AdminSweepNegotiations(tt.sweep, logg)(resp, httptest.NewRequest(http.MethodPost, "/api/v1/admin/negotiations/sweep", nil))
			if resp.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, resp.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			var envelope struct {
				Data map[string]float64 `json:"data"`
			}
			if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("unmarshal response: %v", err)
			}
			if int(envelope.Data["total_expired_rooms"]) != tt.total {
				t.Fatalf("expected total %d got %v", tt.total, envelope.Data["total_expired_rooms"])
			}
		})
	}
}

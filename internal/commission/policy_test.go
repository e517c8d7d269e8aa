package commission

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeHistory struct {
	repeat bool
	err    error
}

func (f *fakeHistory) WithTx(*gorm.DB) TradeHistory { return f }

func (f *fakeHistory) HasPriorTrade(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.repeat, f.err
}

func defaultCommission() config.CommissionConfig {
	return config.CommissionConfig{FirstTradeRate: "3.0", RepeatTradeRate: "1.0"}
}

func TestRateForFirstAndRepeatTrade(t *testing.T) {
	history := &fakeHistory{}
	policy, err := NewPolicy(defaultCommission(), history)
	require.NoError(t, err)

	rate, err := policy.RateFor(context.Background(), nil, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(3)), "got %s", rate)

	history.repeat = true
	rate, err = policy.RateFor(context.Background(), nil, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)), "got %s", rate)
}

func TestRateForWrapsHistoryFailure(t *testing.T) {
	policy, err := NewPolicy(defaultCommission(), &fakeHistory{err: errors.New("db down")})
	require.NoError(t, err)

	_, err = policy.RateFor(context.Background(), nil, uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	_, err := NewPolicy(config.CommissionConfig{FirstTradeRate: "x", RepeatTradeRate: "1"}, &fakeHistory{})
	assert.Error(t, err)

	_, err = NewPolicy(defaultCommission(), nil)
	assert.Error(t, err)
}

func TestHoldAmountRounding(t *testing.T) {
	tests := []struct {
		name string
		base int64
		rate string
		want int64
	}{
		{name: "worked example", base: 1_000_000, rate: "3", want: 30000},
		{name: "rounds half up", base: 50, rate: "1", want: 1},
		{name: "rounds down", base: 149, rate: "1", want: 1},
		{name: "fractional rate", base: 12345, rate: "2.5", want: 309},
		{name: "zero rate", base: 1000, rate: "0", want: 0},
		{name: "zero base", base: 0, rate: "3", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HoldAmount(tt.base, decimal.RequireFromString(tt.rate))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHoldAmountForPrefersBudgetMin(t *testing.T) {
	budget := int64(1_000_000)
	quote := &models.Quote{TotalPrice: 800_000, CommissionRate: decimal.NewFromInt(3)}

	assert.Equal(t, int64(30000), HoldAmountFor(&models.RFQ{BudgetMin: &budget}, quote))
	assert.Equal(t, int64(24000), HoldAmountFor(&models.RFQ{}, quote))
	assert.Equal(t, int64(24000), SettlementCommission(quote))
	assert.Equal(t, int64(0), HoldAmountFor(&models.RFQ{}, nil))
}

func TestTradeHistoryCountsQualifyingOrders(t *testing.T) {
	conn := dbtest.Open(t)
	history := NewTradeHistory(conn)
	ctx := context.Background()
	buyerID, supplierID := uuid.New(), uuid.New()

	insertOrder := func(status enums.OrderStatus) {
		t.Helper()
		order := models.Order{
			RFQID:         uuid.New(),
			QuoteID:       uuid.New(),
			ChatRoomID:    uuid.New(),
			BuyerID:       buyerID,
			SupplierID:    supplierID,
			ProductAmount: 1000,
			TotalAmount:   1000,
			Status:        status,
		}
		require.NoError(t, conn.Create(&order).Error)
	}

	insertOrder(enums.OrderStatusShipping)
	repeat, err := history.HasPriorTrade(ctx, buyerID, supplierID)
	require.NoError(t, err)
	assert.False(t, repeat)

	insertOrder(enums.OrderStatusDelivered)
	repeat, err = history.HasPriorTrade(ctx, buyerID, supplierID)
	require.NoError(t, err)
	assert.True(t, repeat)

	repeat, err = history.HasPriorTrade(ctx, uuid.New(), supplierID)
	require.NoError(t, err)
	assert.False(t, repeat)
}

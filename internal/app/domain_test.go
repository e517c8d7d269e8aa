package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rfqmarket-backend/internal/credits"
	"github.com/angelmondragon/rfqmarket-backend/internal/deals"
	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Commission:  config.CommissionConfig{FirstTradeRate: "3.0", RepeatTradeRate: "1.0"},
		Negotiation: config.NegotiationConfig{Window: 72 * time.Hour},
	}
}

func TestNewDomainRequiresDependencies(t *testing.T) {
	_, err := NewDomain(nil, nil, nil, prometheus.NewRegistry())
	require.Error(t, err)
}

func TestNewDomainRejectsBadCommissionRates(t *testing.T) {
	cfg := testConfig()
	cfg.Commission.FirstTradeRate = "three"
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})

	_, err := NewDomain(cfg, logg, dbtest.OpenClient(t), prometheus.NewRegistry())
	require.Error(t, err)
}

func TestDomainRunsDealToInvoice(t *testing.T) {
	client := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	domain, err := NewDomain(testConfig(), logg, client, prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	buyer := deals.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	supplier := deals.Actor{UserID: uuid.New(), Role: enums.ActorRoleSupplier}

	_, err = domain.Credits.Charge(ctx, nil, credits.Movement{
		SupplierID:  supplier.UserID,
		Amount:      100000,
		Description: "credit purchase",
	})
	require.NoError(t, err)

	budget := int64(1000000)
	rfq, err := domain.Deals.CreateRFQ(ctx, deals.CreateRFQInput{
		Actor:     buyer,
		Title:     "Galvanized brackets",
		Quantity:  50,
		BudgetMin: &budget,
	})
	require.NoError(t, err)

	submitted, err := domain.Deals.SubmitQuote(ctx, deals.SubmitQuoteInput{
		Actor:        supplier,
		RFQID:        rfq.ID,
		UnitPrice:    18000,
		DeliveryDate: time.Now().UTC().Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), submitted.HeldAmount)

	accepted, err := domain.Deals.AcceptQuote(ctx, submitted.Quote.ID, buyer)
	require.NoError(t, err)
	require.NotNil(t, accepted.Order)

	for _, step := range []struct {
		actor  deals.Actor
		target enums.OrderStatus
	}{
		{supplier, enums.OrderStatusShipping},
		{supplier, enums.OrderStatusDelivered},
		{buyer, enums.OrderStatusConfirmed},
	} {
		_, err := domain.Deals.AdvanceOrder(ctx, deals.AdvanceOrderInput{
			OrderID: accepted.Order.ID,
			Actor:   step.actor,
			Target:  step.target,
		})
		require.NoError(t, err, "advance to %s", step.target)
	}

	invoice, err := domain.Invoices.GetByOrder(ctx, accepted.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted.Order.ID, invoice.OrderID)

	balance, err := domain.Credits.GetBalance(ctx, supplier.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), balance)

	var notices int64
	require.NoError(t, client.DB().Model(&models.Notification{}).Count(&notices).Error)
	assert.Positive(t, notices)
}

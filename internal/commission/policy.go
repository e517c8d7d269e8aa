// Package commission decides which percentage a supplier pays on a quote and
// turns it into integer currency amounts.
package commission

import (
	"context"
	"fmt"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rfqmarket-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// TradeHistory answers whether a buyer/supplier pair has traded before.
type TradeHistory interface {
	WithTx(tx *gorm.DB) TradeHistory
	HasPriorTrade(ctx context.Context, buyerID, supplierID uuid.UUID) (bool, error)
}

// Policy holds the configured first-trade and repeat-trade percentages.
type Policy struct {
	history     TradeHistory
	firstTrade  decimal.Decimal
	repeatTrade decimal.Decimal
}

// NewPolicy parses the configured rates.
func NewPolicy(cfg config.CommissionConfig, history TradeHistory) (*Policy, error) {
	if history == nil {
		return nil, fmt.Errorf("trade history required")
	}
	first, repeat, err := cfg.Rates()
	if err != nil {
		return nil, err
	}
	return &Policy{history: history, firstTrade: first, repeatTrade: repeat}, nil
}

// FirstTradeRate is the percentage charged when a pair has never traded.
func (p *Policy) FirstTradeRate() decimal.Decimal { return p.firstTrade }

// RepeatTradeRate is the percentage charged once a pair has a delivered order.
func (p *Policy) RepeatTradeRate() decimal.Decimal { return p.repeatTrade }

// RateFor returns the percentage for the pair. tx may be nil.
func (p *Policy) RateFor(ctx context.Context, tx *gorm.DB, buyerID, supplierID uuid.UUID) (decimal.Decimal, error) {
	repeat, err := p.history.WithTx(tx).HasPriorTrade(ctx, buyerID, supplierID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trade history")
	}
	if repeat {
		return p.repeatTrade, nil
	}
	return p.firstTrade, nil
}

// HoldAmount applies a percentage to base, rounding half away from zero.
func HoldAmount(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(base).Mul(rate).Div(hundred).Round(0).IntPart()
}

// HoldBase is the RFQ minimum budget when set, else the quote total.
func HoldBase(rfq *models.RFQ, quote *models.Quote) int64 {
	if rfq != nil && rfq.BudgetMin != nil {
		return *rfq.BudgetMin
	}
	if quote == nil {
		return 0
	}
	return quote.TotalPrice
}

// HoldAmountFor sizes the hold for a quote using the rate stored on it.
func HoldAmountFor(rfq *models.RFQ, quote *models.Quote) int64 {
	if quote == nil {
		return 0
	}
	return HoldAmount(HoldBase(rfq, quote), quote.CommissionRate)
}

// SettlementCommission is the commission on the accepted bid itself.
func SettlementCommission(quote *models.Quote) int64 {
	if quote == nil {
		return 0
	}
	return HoldAmount(quote.TotalPrice, quote.CommissionRate)
}

type tradeHistory struct {
	db *gorm.DB
}

// NewTradeHistory reads prior orders from the orders table.
func NewTradeHistory(db *gorm.DB) TradeHistory {
	return &tradeHistory{db: db}
}

func (h *tradeHistory) WithTx(tx *gorm.DB) TradeHistory {
	if tx == nil {
		return h
	}
	return &tradeHistory{db: tx}
}

func (h *tradeHistory) HasPriorTrade(ctx context.Context, buyerID, supplierID uuid.UUID) (bool, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("buyer_id = ? AND supplier_id = ? AND status IN ?", buyerID, supplierID, enums.RepeatTradeOrderStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

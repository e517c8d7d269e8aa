package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is the billing document issued once per settled order.
// CommissionAmount is the order's hold-sized commission; SettlementCommission
// is the snapshot rate applied to the accepted bid.
type Invoice struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID              uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	Number               string    `gorm:"column:number;type:text;not null;uniqueIndex" json:"number"`
	BuyerID              uuid.UUID `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SupplierID           uuid.UUID `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	SupplyAmount         int64     `gorm:"column:supply_amount;not null" json:"supply_amount"`
	CommissionAmount     int64     `gorm:"column:commission_amount;not null" json:"commission_amount"`
	SettlementCommission int64     `gorm:"column:settlement_commission;not null" json:"settlement_commission"`
	TotalAmount          int64     `gorm:"column:total_amount;not null" json:"total_amount"`
	IsRepeatTrade        bool      `gorm:"column:is_repeat_trade;not null" json:"is_repeat_trade"`
	IssuedAt             time.Time `gorm:"column:issued_at;not null" json:"issued_at"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceSequence tracks the last invoice number issued per calendar day.
type InvoiceSequence struct {
	Day       string `gorm:"column:day;type:text;primaryKey" json:"day"`
	LastValue int64  `gorm:"column:last_value;not null" json:"last_value"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

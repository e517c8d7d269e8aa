package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

// Quote is a supplier's priced response to an RFQ. CommissionRate is the
// percentage in force when the quote was submitted and never changes.
type Quote struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RFQID          uuid.UUID         `gorm:"column:rfq_id;type:uuid;not null" json:"rfq_id"`
	SupplierID     uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	UnitPrice      int64             `gorm:"column:unit_price;not null" json:"unit_price"`
	Quantity       int64             `gorm:"column:quantity;not null" json:"quantity"`
	TotalPrice     int64             `gorm:"column:total_price;not null" json:"total_price"`
	DeliveryDate   time.Time         `gorm:"column:delivery_date;not null" json:"delivery_date"`
	Note           *string           `gorm:"column:note;type:text" json:"note"`
	CommissionRate decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,2);not null" json:"commission_rate"`
	Status         enums.QuoteStatus `gorm:"column:status;type:quote_status;not null" json:"status"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }

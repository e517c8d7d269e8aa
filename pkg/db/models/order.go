package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

// Order is the confirmed deal produced by an accepted quote.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RFQID            uuid.UUID         `gorm:"column:rfq_id;type:uuid;not null" json:"rfq_id"`
	QuoteID          uuid.UUID         `gorm:"column:quote_id;type:uuid;not null" json:"quote_id"`
	ChatRoomID       uuid.UUID         `gorm:"column:chat_room_id;type:uuid;not null;uniqueIndex" json:"chat_room_id"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SupplierID       uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	ProductAmount    int64             `gorm:"column:product_amount;not null" json:"product_amount"`
	TotalAmount      int64             `gorm:"column:total_amount;not null" json:"total_amount"`
	CommissionAmount int64             `gorm:"column:commission_amount;not null" json:"commission_amount"`
	SupplierFee      int64             `gorm:"column:supplier_fee;not null" json:"supplier_fee"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null" json:"status"`
	PaymentKey       *string           `gorm:"column:payment_key;type:text" json:"payment_key"`
	PaymentMethod    *string           `gorm:"column:payment_method;type:text" json:"payment_method"`
	PaidAt           *time.Time        `gorm:"column:paid_at" json:"paid_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancelReason     *string           `gorm:"column:cancel_reason;type:text" json:"cancel_reason"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

// ChatRoom is the negotiation channel opened alongside a quote.
type ChatRoom struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuoteID    uuid.UUID            `gorm:"column:quote_id;type:uuid;not null;uniqueIndex" json:"quote_id"`
	RFQID      uuid.UUID            `gorm:"column:rfq_id;type:uuid;not null" json:"rfq_id"`
	BuyerID    uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SupplierID uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	Status     enums.ChatRoomStatus `gorm:"column:status;type:chat_room_status;not null" json:"status"`
	ExpiresAt  time.Time            `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ChatRoom) TableName() string { return "chat_rooms" }

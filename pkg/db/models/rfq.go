package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

// RFQ is a buyer's request for quotation.
type RFQ struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID          uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	Title            string          `gorm:"column:title;type:text;not null" json:"title"`
	Description      *string         `gorm:"column:description;type:text" json:"description"`
	Quantity         int64           `gorm:"column:quantity;not null" json:"quantity"`
	BudgetMin        *int64          `gorm:"column:budget_min" json:"budget_min"`
	BudgetMax        *int64          `gorm:"column:budget_max" json:"budget_max"`
	IsTargeted       bool            `gorm:"column:is_targeted;not null;default:false" json:"is_targeted"`
	TargetSupplierID *uuid.UUID      `gorm:"column:target_supplier_id;type:uuid" json:"target_supplier_id"`
	Status           enums.RFQStatus `gorm:"column:status;type:rfq_status;not null" json:"status"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RFQ) TableName() string { return "rfqs" }

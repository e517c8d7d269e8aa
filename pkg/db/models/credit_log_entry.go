package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
)

// CreditLogEntry is an append-only record of a balance movement.
type CreditLogEntry struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SupplierID   uuid.UUID           `gorm:"column:supplier_id;type:uuid;not null" json:"supplier_id"`
	Amount       int64               `gorm:"column:amount;not null" json:"amount"`
	Kind         enums.CreditLogKind `gorm:"column:kind;type:credit_log_kind;not null" json:"kind"`
	Description  string              `gorm:"column:description;type:text;not null" json:"description"`
	ReferenceID  *uuid.UUID          `gorm:"column:reference_id;type:uuid" json:"reference_id"`
	BalanceAfter int64               `gorm:"column:balance_after;not null" json:"balance_after"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CreditLogEntry) TableName() string { return "credit_log_entries" }

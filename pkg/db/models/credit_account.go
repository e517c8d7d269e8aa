package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditAccount is a supplier's spendable commission balance. Balance always
// equals the sum of the account's CreditLogEntry amounts.
type CreditAccount struct {
	SupplierID uuid.UUID `gorm:"column:supplier_id;type:uuid;primaryKey"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CreditAccount) TableName() string { return "credit_accounts" }

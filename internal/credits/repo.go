package credits

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists credit accounts and their append-only log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Debit(ctx context.Context, supplierID uuid.UUID, amount int64, now time.Time) (bool, error)
	Credit(ctx context.Context, supplierID uuid.UUID, amount int64, now time.Time) error
	Balance(ctx context.Context, supplierID uuid.UUID) (int64, error)
	AppendEntry(ctx context.Context, entry *models.CreditLogEntry) error
	ListEntries(ctx context.Context, params listEntriesParams) ([]models.CreditLogEntry, *pagination.Keyset, error)
	SumEntries(ctx context.Context, supplierID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

type listEntriesParams struct {
	SupplierID uuid.UUID
	Limit      int
	Cursor     *pagination.Keyset
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Debit subtracts amount only when the balance covers it. The guard lives in
// the UPDATE itself so concurrent holds cannot both pass a stale read.
func (r *repository) Debit(ctx context.Context, supplierID uuid.UUID, amount int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreditAccount{}).
		Where("supplier_id = ? AND balance >= ?", supplierID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Credit adds amount, opening the account on first use.
func (r *repository) Credit(ctx context.Context, supplierID uuid.UUID, amount int64, now time.Time) error {
	account := models.CreditAccount{
		SupplierID: supplierID,
		Balance:    amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "supplier_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance":    gorm.Expr("credit_accounts.balance + ?", amount),
				"updated_at": now,
			}),
		}).
		Create(&account).Error
}

// Balance returns zero for suppliers without an account row.
func (r *repository) Balance(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var account models.CreditAccount
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.CreditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, params listEntriesParams) ([]models.CreditLogEntry, *pagination.Keyset, error) {
	var entries []models.CreditLogEntry
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", params.SupplierID).
		Scopes(pagination.Scope(params.Cursor, params.Limit)).
		Find(&entries).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(entries, params.Limit, func(e models.CreditLogEntry) pagination.Keyset {
		return pagination.Keyset{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}

func (r *repository) SumEntries(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditLogEntry{}).
		Where("supplier_id = ?", supplierID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

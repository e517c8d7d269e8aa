package invoices

import (
	"context"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists invoices and their per-day number sequence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	HasPriorSettledOrder(ctx context.Context, order *models.Order) (bool, error)
	NextSequence(ctx context.Context, day string) (int64, error)
	Create(ctx context.Context, invoice *models.Invoice) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoices repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).Where("id = ?", quoteID).Take(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// HasPriorSettledOrder reports whether the pair settled an earlier order.
func (r *repository) HasPriorSettledOrder(ctx context.Context, order *models.Order) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("buyer_id = ? AND supplier_id = ? AND id <> ? AND created_at < ? AND status IN ?",
			order.BuyerID, order.SupplierID, order.ID, order.CreatedAt, enums.InvoicedOrderStatuses).
		Count(&count).Error
	return count > 0, err
}

// NextSequence increments and returns the counter for day.
func (r *repository) NextSequence(ctx context.Context, day string) (int64, error) {
	seq := models.InvoiceSequence{Day: day, LastValue: 1}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_value": gorm.Expr("invoice_sequences.last_value + 1"),
			}),
		}).
		Create(&seq).Error
	if err != nil {
		return 0, err
	}
	var current models.InvoiceSequence
	if err := r.db.WithContext(ctx).Where("day = ?", day).Take(&current).Error; err != nil {
		return 0, err
	}
	return current.LastValue, nil
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func dayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

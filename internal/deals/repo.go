package deals

import (
	"context"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists RFQs, quotes, chat rooms and orders. Status changes are
// compare-and-set: they only apply when the row is still in one of the
// expected source states and report whether a row changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateRFQ(ctx context.Context, rfq *models.RFQ) error
	FindRFQ(ctx context.Context, id uuid.UUID) (*models.RFQ, error)
	TransitionRFQ(ctx context.Context, id uuid.UUID, from []enums.RFQStatus, to enums.RFQStatus) (bool, error)

	CreateQuote(ctx context.Context, quote *models.Quote) error
	FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	QuoteExists(ctx context.Context, rfqID, supplierID uuid.UUID) (bool, error)
	ListPendingQuotes(ctx context.Context, rfqID uuid.UUID, excludeID uuid.UUID) ([]models.Quote, error)
	TransitionQuote(ctx context.Context, id uuid.UUID, to enums.QuoteStatus) (bool, error)

	CreateChatRoom(ctx context.Context, room *models.ChatRoom) error
	FindChatRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error)
	FindChatRoomByQuote(ctx context.Context, quoteID uuid.UUID) (*models.ChatRoom, error)
	TransitionChatRoom(ctx context.Context, id uuid.UUID, from enums.ChatRoomStatus, to enums.ChatRoomStatus, now time.Time) (bool, error)
	ListExpiredChatRooms(ctx context.Context, now time.Time, limit int) ([]models.ChatRoom, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderExistsForChatRoom(ctx context.Context, chatRoomID uuid.UUID) (bool, error)
	TransitionOrder(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, changes map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a deals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRFQ(ctx context.Context, rfq *models.RFQ) error {
	return r.db.WithContext(ctx).Create(rfq).Error
}

func (r *repository) FindRFQ(ctx context.Context, id uuid.UUID) (*models.RFQ, error) {
	var rfq models.RFQ
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rfq).Error; err != nil {
		return nil, err
	}
	return &rfq, nil
}

func (r *repository) TransitionRFQ(ctx context.Context, id uuid.UUID, from []enums.RFQStatus, to enums.RFQStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RFQ{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return result.RowsAffected == 1, result.Error
}

func (r *repository) CreateQuote(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) QuoteExists(ctx context.Context, rfqID, supplierID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("rfq_id = ? AND supplier_id = ?", rfqID, supplierID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListPendingQuotes(ctx context.Context, rfqID uuid.UUID, excludeID uuid.UUID) ([]models.Quote, error) {
	var quotes []models.Quote
	err := r.db.WithContext(ctx).
		Where("rfq_id = ? AND id <> ? AND status = ?", rfqID, excludeID, enums.QuoteStatusPending).
		Order("created_at ASC").
		Find(&quotes).Error
	return quotes, err
}

func (r *repository) TransitionQuote(ctx context.Context, id uuid.UUID, to enums.QuoteStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("id = ? AND status = ?", id, enums.QuoteStatusPending).
		Update("status", to)
	return result.RowsAffected == 1, result.Error
}

func (r *repository) CreateChatRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *repository) FindChatRoom(ctx context.Context, id uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *repository) FindChatRoomByQuote(ctx context.Context, quoteID uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Where("quote_id = ?", quoteID).Take(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *repository) TransitionChatRoom(ctx context.Context, id uuid.UUID, from enums.ChatRoomStatus, to enums.ChatRoomStatus, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	return result.RowsAffected == 1, result.Error
}

// ListExpiredChatRooms returns active rooms whose window closed before now,
// oldest deadline first.
func (r *repository) ListExpiredChatRooms(ctx context.Context, now time.Time, limit int) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.ChatRoomStatusActive, now).
		Order("expires_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rooms).Error
	return rooms, err
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) OrderExistsForChatRoom(ctx context.Context, chatRoomID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("chat_room_id = ?", chatRoomID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) TransitionOrder(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, changes map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for key, value := range changes {
		updates[key] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

package outbox

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

// ErrDeadLetterNotFound is returned by Requeue when no dead letter, or no
// unpublished outbox row, exists for the event.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DLQRepository stores outbox rows the relay gave up on and lets an operator
// put them back in the publish queue.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateMessage(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeadLetterQuery filters List. A zero Reason matches every reason.
type DeadLetterQuery struct {
	Reason enums.OutboxDLQErrorReason
	Limit  int
	After  *pagination.Keyset
}

// List pages dead letters newest first.
func (r *DLQRepository) List(ctx context.Context, q DeadLetterQuery) ([]models.OutboxDLQ, *pagination.Keyset, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if q.Reason != "" {
		query = query.Where("error_reason = ?", q.Reason)
	}
	var rows []models.OutboxDLQ
	if err := query.Scopes(pagination.Scope(q.After, q.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, q.Limit, func(row models.OutboxDLQ) pagination.Keyset {
		return pagination.Keyset{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

// Requeue resets the outbox row behind eventID so the relay retries it from
// zero attempts, and removes its dead letters.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var letters int64
		if err := tx.Model(&models.OutboxDLQ{}).Where("event_id = ?", eventID).Count(&letters).Error; err != nil {
			return err
		}
		if letters == 0 {
			return ErrDeadLetterNotFound
		}

		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDeadLetterNotFound
		}
		return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
	})
}

// truncateMessage cuts msg to at most limit bytes without splitting a rune.
func truncateMessage(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	return strings.ToValidUTF8(msg[:limit], "")
}

package notifications

import (
	"context"
	"strings"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/angelmondragon/rfqmarket-backend/pkg/logger"
	"github.com/google/uuid"
)

// Notice is one in-app message for a user.
type Notice struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    string
}

// Notifier delivers notices after the triggering transaction has committed.
// Delivery is best effort: failures are logged and never returned.
type Notifier struct {
	repo Repository
	logg *logger.Logger
}

// NewNotifier builds a notifier that persists notices to the inbox table.
func NewNotifier(repo Repository, logg *logger.Logger) *Notifier {
	return &Notifier{repo: repo, logg: logg}
}

// Notify stores each notice independently.
func (n *Notifier) Notify(ctx context.Context, notices ...Notice) {
	if n == nil || n.repo == nil {
		return
	}
	for _, notice := range notices {
		if notice.UserID == uuid.Nil {
			continue
		}
		row := &models.Notification{
			UserID:  notice.UserID,
			Type:    notice.Type,
			Title:   notice.Title,
			Message: strings.TrimSpace(notice.Message),
		}
		if notice.Link != "" {
			link := notice.Link
			row.Link = &link
		}
		if err := n.repo.Create(ctx, row); err != nil && n.logg != nil {
			logCtx := n.logg.WithFields(ctx, map[string]any{
				"user_id":           notice.UserID.String(),
				"notification_type": notice.Type,
			})
			n.logg.Error(logCtx, "notification delivery failed", err)
		}
	}
}

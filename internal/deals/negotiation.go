package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/internal/notifications"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExpireResult reports what a single expiry changed. Expired is false when
// the room had already left the active state.
type ExpireResult struct {
	ChatRoomID uuid.UUID
	QuoteID    uuid.UUID
	Expired    bool
	Refunded   int64
}

// ExpireNegotiation closes a chat room whose window has lapsed. State is
// re-read inside the transaction so a concurrent accept or reject wins
// cleanly and the call becomes a no-op.
func (s *service) ExpireNegotiation(ctx context.Context, chatRoomID uuid.UUID) (*ExpireResult, error) {
	result := &ExpireResult{ChatRoomID: chatRoomID}
	var notice *notifications.Notice

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		room, err := repo.FindChatRoom(ctx, chatRoomID)
		if err != nil {
			return loadErr(err, "chat room")
		}
		result.QuoteID = room.QuoteID
		if room.Status != enums.ChatRoomStatusActive {
			return nil
		}
		quote, err := repo.FindQuote(ctx, room.QuoteID)
		if err != nil {
			return loadErr(err, "quote")
		}
		rfq, err := repo.FindRFQ(ctx, room.RFQID)
		if err != nil {
			return loadErr(err, "rfq")
		}

		outcome, err := s.closeQuote(ctx, tx, rfq, quote, room, enums.QuoteStatusExpired, enums.ChatRoomStatusExpired, Actor{},
			fmt.Sprintf("negotiation %s expired", room.ID))
		if err != nil {
			return err
		}
		result.Expired = outcome.RoomChanged
		result.Refunded = outcome.Refunded
		if outcome.QuoteClosed {
			notice = &notifications.Notice{
				UserID:  quote.SupplierID,
				Type:    enums.NotificationTypeNegotiationExpired,
				Title:   "Negotiation expired",
				Message: fmt.Sprintf("The negotiation for %q lapsed. %d credits were returned.", rfq.Title, outcome.Refunded),
				Link:    quoteLink(quote.ID),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notice != nil {
		s.notifier.Notify(ctx, *notice)
	}
	return result, nil
}

// ListLapsedNegotiations returns active chat rooms whose deadline is before now.
func (s *service) ListLapsedNegotiations(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rooms, err := s.repo.ListExpiredChatRooms(ctx, now, limit)
	if err != nil {
		return nil, writeErr(err, "list expired chat rooms")
	}
	ids := make([]uuid.UUID, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	return ids, nil
}

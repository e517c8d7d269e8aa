package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/rfqmarket-backend/pkg/db/models"
	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteReadBeforeKeepsUnreadAndRecent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	readAt := recent

	rows := []models.Notification{
		{ID: uuid.New(), UserID: userID, Type: enums.NotificationTypeOrderStatus, Title: "old read", CreatedAt: old, ReadAt: &readAt},
		{ID: uuid.New(), UserID: userID, Type: enums.NotificationTypeOrderStatus, Title: "old unread", CreatedAt: old},
		{ID: uuid.New(), UserID: userID, Type: enums.NotificationTypeOrderStatus, Title: "recent read", CreatedAt: recent, ReadAt: &readAt},
	}
	for i := range rows {
		require.NoError(t, conn.Create(&rows[i]).Error)
	}

	deleted, err := repo.DeleteReadBefore(ctx, nil, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.Notification
	require.NoError(t, conn.Order("title").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "old unread", remaining[0].Title)
	assert.Equal(t, "recent read", remaining[1].Title)
}

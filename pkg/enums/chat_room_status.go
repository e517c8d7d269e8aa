package enums

import "fmt"

// ChatRoomStatus maps to the chat_room_status enum in Postgres.
type ChatRoomStatus string

const (
	ChatRoomStatusActive        ChatRoomStatus = "active"
	ChatRoomStatusDealConfirmed ChatRoomStatus = "deal_confirmed"
	ChatRoomStatusExpired       ChatRoomStatus = "expired"
	ChatRoomStatusClosed        ChatRoomStatus = "closed"
)

var validChatRoomStatuses = []ChatRoomStatus{
	ChatRoomStatusActive,
	ChatRoomStatusDealConfirmed,
	ChatRoomStatusExpired,
	ChatRoomStatusClosed,
}

func (s ChatRoomStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical chat_room_status enum.
func (s ChatRoomStatus) IsValid() bool {
	for _, candidate := range validChatRoomStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseChatRoomStatus converts raw input into ChatRoomStatus.
func ParseChatRoomStatus(value string) (ChatRoomStatus, error) {
	for _, candidate := range validChatRoomStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid chat room status %q", value)
}

package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeQuoteReceived      NotificationType = "quote_received"
	NotificationTypeQuoteSubmitted     NotificationType = "quote_submitted"
	NotificationTypeQuoteAccepted      NotificationType = "quote_accepted"
	NotificationTypeQuoteRejected      NotificationType = "quote_rejected"
	NotificationTypeNegotiationExpired NotificationType = "negotiation_expired"
	NotificationTypeOrderStatus        NotificationType = "order_status"
	NotificationTypePaymentConfirmed   NotificationType = "payment_confirmed"
	NotificationTypePaymentCancelled   NotificationType = "payment_cancelled"
	NotificationTypeCreditCharged      NotificationType = "credit_charged"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeQuoteReceived,
	NotificationTypeQuoteSubmitted,
	NotificationTypeQuoteAccepted,
	NotificationTypeQuoteRejected,
	NotificationTypeNegotiationExpired,
	NotificationTypeOrderStatus,
	NotificationTypePaymentConfirmed,
	NotificationTypePaymentCancelled,
	NotificationTypeCreditCharged,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

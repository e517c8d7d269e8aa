package enums

import "fmt"

// PaymentWebhookEvent is the eventType field of gateway webhook deliveries.
type PaymentWebhookEvent string

const (
	PaymentWebhookCompleted               PaymentWebhookEvent = "PAYMENT_COMPLETED"
	PaymentWebhookVirtualAccountDeposited PaymentWebhookEvent = "VIRTUAL_ACCOUNT_DEPOSITED"
	PaymentWebhookCanceled                PaymentWebhookEvent = "PAYMENT_CANCELED"
	PaymentWebhookStatusChanged           PaymentWebhookEvent = "PAYMENT_STATUS_CHANGED"
)

var validPaymentWebhookEvents = []PaymentWebhookEvent{
	PaymentWebhookCompleted,
	PaymentWebhookVirtualAccountDeposited,
	PaymentWebhookCanceled,
	PaymentWebhookStatusChanged,
}

// IsValid reports whether the value is a handled webhook event type.
func (e PaymentWebhookEvent) IsValid() bool {
	for _, candidate := range validPaymentWebhookEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParsePaymentWebhookEvent converts raw input into PaymentWebhookEvent.
func ParsePaymentWebhookEvent(value string) (PaymentWebhookEvent, error) {
	for _, candidate := range validPaymentWebhookEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment webhook event %q", value)
}

// PaymentStatus is the gateway-reported status of a payment.
type PaymentStatus string

const (
	PaymentStatusReady           PaymentStatus = "READY"
	PaymentStatusInProgress      PaymentStatus = "IN_PROGRESS"
	PaymentStatusWaitingDeposit  PaymentStatus = "WAITING_FOR_DEPOSIT"
	PaymentStatusDone            PaymentStatus = "DONE"
	PaymentStatusCanceled        PaymentStatus = "CANCELED"
	PaymentStatusPartialCanceled PaymentStatus = "PARTIAL_CANCELED"
	PaymentStatusAborted         PaymentStatus = "ABORTED"
	PaymentStatusExpired         PaymentStatus = "EXPIRED"
)

// IsSettled reports whether funds were captured.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusDone
}

// IsCanceled reports whether the payment was fully or partially reversed.
func (s PaymentStatus) IsCanceled() bool {
	return s == PaymentStatusCanceled || s == PaymentStatusPartialCanceled
}

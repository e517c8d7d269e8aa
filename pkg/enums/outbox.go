package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRFQ           OutboxAggregateType = "rfq"
	AggregateQuote         OutboxAggregateType = "quote"
	AggregateOrder         OutboxAggregateType = "order"
	AggregateInvoice       OutboxAggregateType = "invoice"
	AggregateCreditAccount OutboxAggregateType = "credit_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRFQ,
	AggregateQuote,
	AggregateOrder,
	AggregateInvoice,
	AggregateCreditAccount,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRFQCancelled       OutboxEventType = "rfq_cancelled"
	EventQuoteSubmitted     OutboxEventType = "quote_submitted"
	EventQuoteAccepted      OutboxEventType = "quote_accepted"
	EventQuoteRejected      OutboxEventType = "quote_rejected"
	EventQuoteExpired       OutboxEventType = "quote_expired"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventInvoiceIssued      OutboxEventType = "invoice_issued"
	EventCreditCharged      OutboxEventType = "credit_charged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRFQCancelled,
	EventQuoteSubmitted,
	EventQuoteAccepted,
	EventQuoteRejected,
	EventQuoteExpired,
	EventOrderStatusChanged,
	EventOrderPaid,
	EventOrderCancelled,
	EventInvoiceIssued,
	EventCreditCharged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

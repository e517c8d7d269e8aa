package payloads

import (
	"time"

	"github.com/angelmondragon/rfqmarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// RFQCancelledEvent is emitted when a buyer withdraws an RFQ. Pending quotes
// rejected by the cascade are listed with their refunded holds.
type RFQCancelledEvent struct {
	RFQID          uuid.UUID   `json:"rfq_id"`
	BuyerID        uuid.UUID   `json:"buyer_id"`
	RejectedQuotes []uuid.UUID `json:"rejected_quote_ids"`
	RefundedAmount int64       `json:"refunded_amount"`
}

// QuoteSubmittedEvent carries the hold taken when a supplier quotes.
type QuoteSubmittedEvent struct {
	QuoteID        uuid.UUID `json:"quote_id"`
	RFQID          uuid.UUID `json:"rfq_id"`
	ChatRoomID     uuid.UUID `json:"chat_room_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SupplierID     uuid.UUID `json:"supplier_id"`
	TotalPrice     int64     `json:"total_price"`
	CommissionRate string    `json:"commission_rate"`
	HeldAmount     int64     `json:"held_amount"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// QuoteAcceptedEvent is emitted alongside the order the acceptance creates.
type QuoteAcceptedEvent struct {
	QuoteID    uuid.UUID `json:"quote_id"`
	RFQID      uuid.UUID `json:"rfq_id"`
	OrderID    uuid.UUID `json:"order_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	Total      int64     `json:"total_amount"`
}

// QuoteClosedEvent covers rejection and expiry, both of which refund the hold.
type QuoteClosedEvent struct {
	QuoteID        uuid.UUID         `json:"quote_id"`
	RFQID          uuid.UUID         `json:"rfq_id"`
	ChatRoomID     *uuid.UUID        `json:"chat_room_id,omitempty"`
	SupplierID     uuid.UUID         `json:"supplier_id"`
	Status         enums.QuoteStatus `json:"status"`
	RefundedAmount int64             `json:"refunded_amount"`
}

// OrderStatusChangedEvent records a single order transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	SupplierID uuid.UUID         `json:"supplier_id"`
	From       enums.OrderStatus `json:"from"`
	To         enums.OrderStatus `json:"to"`
	ActorRole  enums.ActorRole   `json:"actor_role"`
}

// OrderPaidEvent is emitted when the gateway confirms a payment.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentKey    string    `json:"payment_key"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Amount        int64     `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled and the supplier
// fee is returned to the supplier's credit account.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	SupplierID     uuid.UUID `json:"supplier_id"`
	Reason         string    `json:"reason"`
	RefundedAmount int64     `json:"refunded_amount"`
}

// InvoiceIssuedEvent is emitted once per invoiced order.
type InvoiceIssuedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Number        string    `json:"number"`
	TotalAmount   int64     `json:"total_amount"`
	IsRepeatTrade bool      `json:"is_repeat_trade"`
}

// CreditChargedEvent is emitted when credit is purchased or granted.
type CreditChargedEvent struct {
	SupplierID   uuid.UUID `json:"supplier_id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
}

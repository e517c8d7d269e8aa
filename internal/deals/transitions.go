package deals

import "github.com/angelmondragon/rfqmarket-backend/pkg/enums"

type orderEdge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// orderTransitions is the allow-list of order moves per role. Payment
// settlement and gateway cancellation move orders through MarkPaid and
// CancelPaidOrder instead.
var orderTransitions = map[enums.ActorRole]map[orderEdge]struct{}{
	enums.ActorRoleBuyer: {
		{enums.OrderStatusDelivered, enums.OrderStatusConfirmed}: {},
	},
	enums.ActorRoleSupplier: {
		{enums.OrderStatusPaid, enums.OrderStatusPreparing}:     {},
		{enums.OrderStatusPreparing, enums.OrderStatusShipping}: {},
		{enums.OrderStatusShipping, enums.OrderStatusDelivered}: {},
	},
	enums.ActorRoleAdmin: {
		{enums.OrderStatusConfirmed, enums.OrderStatusCompleted}: {},
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:   {},
		{enums.OrderStatusPaid, enums.OrderStatusCancelled}:      {},
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled}: {},
	},
}

// CanTransition reports whether role may move an order from one status to another.
func CanTransition(role enums.ActorRole, from, to enums.OrderStatus) bool {
	edges, ok := orderTransitions[role]
	if !ok {
		return false
	}
	_, ok = edges[orderEdge{from: from, to: to}]
	return ok
}

// payableStatuses are the order states a gateway confirmation may settle.
var payableStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPreparing}

// refundableStatuses are the paid states a buyer or admin cancellation may reverse.
var refundableStatuses = []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusPreparing}

// gatewayReversibleStatuses are the states a gateway-side cancellation may
// reverse; the gateway has already returned the money.
var gatewayReversibleStatuses = []enums.OrderStatus{
	enums.OrderStatusPaid,
	enums.OrderStatusPreparing,
	enums.OrderStatusShipping,
	enums.OrderStatusDelivered,
	enums.OrderStatusConfirmed,
}

func statusIn(status enums.OrderStatus, set []enums.OrderStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}

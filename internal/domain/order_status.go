package domain

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderStatusTransitions lists the targets reachable from each status.
// Administrators may currently move an order between any two statuses, including corrections
// such as DELIVERED back to PROCESSING. Tightening the policy means editing this table.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    OrderStatuses,
	OrderStatusProcessing: OrderStatuses,
	OrderStatusShipped:    OrderStatuses,
	OrderStatusDelivered:  OrderStatuses,
	OrderStatusCancelled:  OrderStatuses,
}

// Valid reports whether the status belongs to the order lifecycle enum.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

// CanTransitionOrderStatus reports whether an order in status from may be moved to status to.
func CanTransitionOrderStatus(from, to OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

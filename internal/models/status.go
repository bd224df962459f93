package models

// OrderStatus is the fulfillment state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// rejected, delivered and cancelled are terminal
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusApproved:  {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusRejected:  {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// AllOrderStatuses lists every known status in lifecycle order
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusApproved,
	OrderStatusRejected,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether target is an allowed successor of s
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(validTransitions[s]) == 0
}

// CountsTowardRevenue reports whether orders in s contribute to revenue
func (s OrderStatus) CountsTowardRevenue() bool {
	switch s {
	case OrderStatusApproved, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

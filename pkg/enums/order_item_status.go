package enums

// OrderItemStatus is the per-vendor fulfillment state of one order item.
type OrderItemStatus string

const (
	OrderItemStatusPending    OrderItemStatus = "pending"
	OrderItemStatusConfirmed  OrderItemStatus = "confirmed"
	OrderItemStatusProcessing OrderItemStatus = "processing"
	OrderItemStatusShipped    OrderItemStatus = "shipped"
	OrderItemStatusDelivered  OrderItemStatus = "delivered"
	OrderItemStatusCancelled  OrderItemStatus = "cancelled"
	OrderItemStatusRefunded   OrderItemStatus = "refunded"
)

// lifecycle order
var orderItemStatuses = closedSet[OrderItemStatus]{
	OrderItemStatusPending,
	OrderItemStatusConfirmed,
	OrderItemStatusProcessing,
	OrderItemStatusShipped,
	OrderItemStatusDelivered,
	OrderItemStatusCancelled,
	OrderItemStatusRefunded,
}

func OrderItemStatuses() []OrderItemStatus { return orderItemStatuses.values() }

func (s OrderItemStatus) String() string { return string(s) }
func (s OrderItemStatus) IsValid() bool  { return orderItemStatuses.has(s) }

// IsLive reports whether the item still counts toward fulfillment.
func (s OrderItemStatus) IsLive() bool {
	return s != OrderItemStatusCancelled && s != OrderItemStatusRefunded
}

func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	return orderItemStatuses.parse("order item status", value)
}

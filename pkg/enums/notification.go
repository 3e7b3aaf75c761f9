package enums

type NotificationType string

const (
	NotificationTypeOrderPlaced     NotificationType = "order_placed"
	NotificationTypeNewVendorOrder  NotificationType = "new_vendor_order"
	NotificationTypePaymentReceived NotificationType = "payment_received"
	NotificationTypePaymentFailed   NotificationType = "payment_failed"
	NotificationTypeOrderShipped    NotificationType = "order_shipped"
	NotificationTypeOrderDelivered  NotificationType = "order_delivered"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypeOrderRefunded   NotificationType = "order_refunded"
)

var notificationTypes = closedSet[NotificationType]{
	NotificationTypeOrderPlaced,
	NotificationTypeNewVendorOrder,
	NotificationTypePaymentReceived,
	NotificationTypePaymentFailed,
	NotificationTypeOrderShipped,
	NotificationTypeOrderDelivered,
	NotificationTypeOrderCancelled,
	NotificationTypeOrderRefunded,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return notificationTypes.parse("notification type", value)
}

package enums

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationOrderConfirmed    NotificationType = "order_confirmed"
	NotificationOrderCancelled    NotificationType = "order_cancelled"
	NotificationOrderRefunded     NotificationType = "order_refunded"
	NotificationWaitlistOffer     NotificationType = "waitlist_offer"
	NotificationTicketTransferred NotificationType = "ticket_transferred"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderConfirmed,
	NotificationOrderCancelled,
	NotificationOrderRefunded,
	NotificationWaitlistOffer,
	NotificationTicketTransferred,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

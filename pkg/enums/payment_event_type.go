package enums

// PaymentEventType is the provider-neutral classification of a payment webhook.
type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment_succeeded"
	PaymentEventFailed    PaymentEventType = "payment_failed"
	PaymentEventRefunded  PaymentEventType = "charge_refunded"
	PaymentEventUnknown   PaymentEventType = "unknown"
)

func (t PaymentEventType) String() string {
	return string(t)
}

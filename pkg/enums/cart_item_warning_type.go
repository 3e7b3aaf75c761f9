package enums

// CartWarningType explains why the snapshot adjusted a cart line.
type CartWarningType string

const (
	CartWarningUnavailable     CartWarningType = "unavailable"
	CartWarningQuantityClamped CartWarningType = "quantity_clamped"
	CartWarningPriceChanged    CartWarningType = "price_changed"
)

var cartWarningTypes = closedSet[CartWarningType]{
	CartWarningUnavailable, CartWarningQuantityClamped, CartWarningPriceChanged,
}

func (c CartWarningType) String() string { return string(c) }
func (c CartWarningType) IsValid() bool  { return cartWarningTypes.has(c) }

func ParseCartWarningType(value string) (CartWarningType, error) {
	return cartWarningTypes.parse("cart warning type", value)
}

package orders

import (
	"fmt"

	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

// vendorTransitions is the only place vendor-driven item moves are defined.
var vendorTransitions = map[enums.OrderItemStatus][]enums.OrderItemStatus{
	enums.OrderItemStatusPending:    {enums.OrderItemStatusProcessing},
	enums.OrderItemStatusConfirmed:  {enums.OrderItemStatusProcessing},
	enums.OrderItemStatusProcessing: {enums.OrderItemStatusShipped},
	enums.OrderItemStatusShipped:    {enums.OrderItemStatusDelivered},
}

// trackingShippable are the states AddTracking may advance straight to shipped.
var trackingShippable = map[enums.OrderItemStatus]bool{
	enums.OrderItemStatusPending:    true,
	enums.OrderItemStatusConfirmed:  true,
	enums.OrderItemStatusProcessing: true,
}

// customerCancellable are the item states a pending order can be cancelled from.
var customerCancellable = map[enums.OrderItemStatus]bool{
	enums.OrderItemStatusPending:   true,
	enums.OrderItemStatusConfirmed: true,
}

// AllowedVendorTransitions lists the targets a vendor may move an item to from the given state.
func AllowedVendorTransitions(from enums.OrderItemStatus) []enums.OrderItemStatus {
	allowed := vendorTransitions[from]
	out := make([]enums.OrderItemStatus, len(allowed))
	copy(out, allowed)
	return out
}

// CanVendorTransition reports whether from→to is a legal vendor move.
func CanVendorTransition(from, to enums.OrderItemStatus) bool {
	for _, candidate := range vendorTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionDetails is attached to ILLEGAL_TRANSITION errors.
type TransitionDetails struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Allowed []string `json:"allowed"`
}

func illegalItemTransition(from, to enums.OrderItemStatus) error {
	allowed := make([]string, 0, len(vendorTransitions[from]))
	for _, status := range vendorTransitions[from] {
		allowed = append(allowed, string(status))
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("cannot move order item from %s to %s", from, to)).
		WithDetails(TransitionDetails{From: string(from), To: string(to), Allowed: allowed})
}

func illegalOrderTransition(from, to enums.OrderStatus) error {
	allowed := []string{}
	if from == enums.OrderStatusPending {
		allowed = append(allowed, string(enums.OrderStatusCancelled))
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(TransitionDetails{From: string(from), To: string(to), Allowed: allowed})
}

package enums

// LedgerEventType classifies a vendor balance journal entry.
type LedgerEventType string

const (
	LedgerEventTypeRevenueAccrued LedgerEventType = "revenue_accrued"
	LedgerEventTypeRefundReversed LedgerEventType = "refund_reversed"
)

var ledgerEventTypes = closedSet[LedgerEventType]{LedgerEventTypeRevenueAccrued, LedgerEventTypeRefundReversed}

func (t LedgerEventType) IsValid() bool { return ledgerEventTypes.has(t) }

// Sign is +1 for entries that raise the vendor balance and -1 for reversals.
func (t LedgerEventType) Sign() int {
	if t == LedgerEventTypeRefundReversed {
		return -1
	}
	return 1
}

func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return ledgerEventTypes.parse("ledger event type", value)
}

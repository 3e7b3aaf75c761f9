package helpers

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"
)

const orderNumberSuffixLen = 6

// NewOrderNumber formats MC-YYYYMMDDHHMMSS-XXXXXX with a random base32 suffix.
// Uniqueness is left to the orders.order_number index.
func NewOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	suffix := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)[:orderNumberSuffixLen]
	return fmt.Sprintf("MC-%s-%s", now.UTC().Format("20060102150405"), suffix), nil
}

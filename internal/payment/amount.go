package payment

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// maxReceiptLen is the provider's limit on the receipt field.
const maxReceiptLen = 40

// ToMinorUnits converts a decimal amount into integer minor units (paise for
// INR) by rounding amount*100 half away from zero. Non-finite and non-positive
// amounts, and amounts that round to zero, are rejected with ErrInvalidAmount.
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	minor := math.Round(amount * 100)
	if minor < 1 || minor > math.MaxInt64/2 {
		return 0, ErrInvalidAmount
	}
	return int64(minor), nil
}

// Receipt builds the provider receipt for a local order id, falling back to the
// current unix milliseconds when no id is known. Long receipts are cut to the
// provider limit without splitting a multi-byte character.
func Receipt(orderID string, now time.Time) string {
	suffix := orderID
	if suffix == "" {
		suffix = strconv.FormatInt(now.UnixMilli(), 10)
	}
	receipt := "order_" + suffix
	if len(receipt) > maxReceiptLen {
		cut := maxReceiptLen
		for cut > 0 && !utf8.RuneStart(receipt[cut]) {
			cut--
		}
		receipt = receipt[:cut]
	}
	return receipt
}

package payment_test

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-payments/internal/payment"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{499.99, 49999},
		{100, 10000},
		{0.01, 1},
		{1.005, 100},
		{12345.6, 1234560},
	}
	for _, tc := range cases {
		got, err := payment.ToMinorUnits(tc.in)
		require.NoError(t, err, "amount %v", tc.in)
		require.Equal(t, tc.want, got, "amount %v", tc.in)
	}
}

func TestToMinorUnitsRejectsInvalidAmounts(t *testing.T) {
	for _, in := range []float64{0, -1, -0.01, 0.004, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := payment.ToMinorUnits(in)
		require.ErrorIs(t, err, payment.ErrInvalidAmount, "amount %v", in)
	}
}

func TestReceipt(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	require.Equal(t, "order_ORD1", payment.Receipt("ORD1", now))
	require.Equal(t, "order_1700000000123", payment.Receipt("", now))

	long := payment.Receipt(strings.Repeat("x", 64), now)
	require.Len(t, long, 40)
	require.True(t, strings.HasPrefix(long, "order_x"))
}

func TestReceiptKeepsMultiByteCharactersWhole(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	// "order_x" is 7 bytes and each "é" is 2, so byte 40 falls inside the 17th.
	got := payment.Receipt("x"+strings.Repeat("é", 30), now)
	require.True(t, utf8.ValidString(got))
	require.LessOrEqual(t, len(got), 40)
	require.Equal(t, "order_x"+strings.Repeat("é", 16), got)

	got = payment.Receipt(strings.Repeat("訂", 20), now)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "order_"+strings.Repeat("訂", 11), got)
}

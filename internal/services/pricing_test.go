package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

func TestQuoteBooking(t *testing.T) {
	price := decimal.NewFromInt(20)

	tests := []struct {
		name        string
		bookingType models.BookingType
		packSize    int
		wantMinor   int64
		wantCredits int
		wantErr     error
	}{
		{"single", models.BookingSingle, 0, 2000, 1, nil},
		{"pack of 5", models.BookingPack, 5, 9000, 5, nil},
		{"pack of 10", models.BookingPack, 10, 16000, 10, nil},
		{"pack of 20", models.BookingPack, 20, 30000, 20, nil},
		{"pack of 7", models.BookingPack, 7, 0, 0, ErrInvalidPackSize},
		{"recurring", models.BookingRecurring, 0, 1700, 1, nil},
		{"unknown", models.BookingType("gift"), 0, 0, 0, ErrInvalidBookingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := QuoteBooking(price, tt.bookingType, tt.packSize)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMinor, q.MinorUnits())
			assert.Equal(t, tt.wantCredits, q.Credits)
		})
	}
}

func TestQuoteBooking_RoundsToCents(t *testing.T) {
	q, err := QuoteBooking(decimal.RequireFromString("19.99"), models.BookingRecurring, 0)
	require.NoError(t, err)
	// 19.99 * 0.85 = 16.9915
	assert.Equal(t, int64(1699), q.MinorUnits())
}

func TestPaidPerCredit(t *testing.T) {
	assert.Equal(t, "16", PaidPerCredit(&models.Payment{Amount: 16000, CreditsPurchased: 10}).String())
	assert.Equal(t, "20", PaidPerCredit(&models.Payment{Amount: 2000, CreditsPurchased: 1}).String())
	assert.Equal(t, "20", PaidPerCredit(&models.Payment{Amount: 2000}).String())
	assert.Equal(t, "3.33", PaidPerCredit(&models.Payment{Amount: 1000, CreditsPurchased: 3}).String())
}

package services

import (
	"github.com/shopspring/decimal"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

var (
	hundred         = decimal.NewFromInt(100)
	recurringFactor = decimal.RequireFromString("0.85")

	// packDiscounts are the only pack sizes on sale.
	packDiscounts = map[int]decimal.Decimal{
		5:  decimal.RequireFromString("0.10"),
		10: decimal.RequireFromString("0.20"),
		20: decimal.RequireFromString("0.25"),
	}
)

// Quote is the price of one checkout. Amount is in major units.
type Quote struct {
	Amount    decimal.Decimal
	Credits   int
	UnitPrice decimal.Decimal
}

// MinorUnits is the amount the gateway charges.
func (q Quote) MinorUnits() int64 {
	return ToMinorUnits(q.Amount)
}

func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// QuoteBooking prices a checkout from the class type's unit price.
func QuoteBooking(price decimal.Decimal, bookingType models.BookingType, packSize int) (Quote, error) {
	switch bookingType {
	case models.BookingSingle:
		return Quote{Amount: price.Round(2), Credits: 1, UnitPrice: price}, nil
	case models.BookingPack:
		discount, ok := packDiscounts[packSize]
		if !ok {
			return Quote{}, ErrInvalidPackSize
		}
		amount := price.Mul(decimal.NewFromInt(int64(packSize))).Mul(decimal.NewFromInt(1).Sub(discount))
		return Quote{Amount: amount.Round(2), Credits: packSize, UnitPrice: price}, nil
	case models.BookingRecurring:
		return Quote{Amount: price.Mul(recurringFactor).Round(2), Credits: 1, UnitPrice: price}, nil
	}
	return Quote{}, ErrInvalidBookingType
}

// PaidPerCredit is what one booking is worth when a payment bought several credits.
func PaidPerCredit(payment *models.Payment) decimal.Decimal {
	return payment.MajorAmount().Div(decimal.NewFromInt(int64(payment.Credits()))).Round(2)
}

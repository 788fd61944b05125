package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"luxe-escrow-server/models"
	"luxe-escrow-server/utils"
)

var defaultCommissionRate = decimal.RequireFromString("0.10")

// commissionRates is the platform fee per service type.
var commissionRates = map[string]decimal.Decimal{
	"taxi":       decimal.RequireFromString("0.10"),
	"luxury-car": decimal.RequireFromString("0.12"),
	"auto":       decimal.RequireFromString("0.12"),
	"limousine":  decimal.RequireFromString("0.12"),
	"adventure":  decimal.RequireFromString("0.15"),
}

// Commission is the split of a booking total between platform and partner.
type Commission struct {
	Rate            decimal.Decimal `json:"rate"`
	Amount          decimal.Decimal `json:"amount"`
	PartnerEarnings decimal.Decimal `json:"partnerEarnings"`
	Total           decimal.Decimal `json:"total"`
}

// CommissionRate looks up the rate for serviceType, falling back to the default.
func CommissionRate(serviceType string) decimal.Decimal {
	if rate, ok := commissionRates[strings.ToLower(strings.TrimSpace(serviceType))]; ok {
		return rate
	}
	return defaultCommissionRate
}

// CalculateCommission rounds the fee to cents and gives the partner the remainder,
// so Amount + PartnerEarnings always equals total.
func CalculateCommission(total decimal.Decimal, serviceType string) Commission {
	rate := CommissionRate(serviceType)
	amount := total.Mul(rate).Round(2)
	return Commission{
		Rate:            rate,
		Amount:          amount,
		PartnerEarnings: total.Sub(amount),
		Total:           total,
	}
}

// bookingCommission is the split stored on a booking when its payment was created.
func bookingCommission(b *models.PartnerBooking) Commission {
	return Commission{
		Rate:            b.CommissionRate,
		Amount:          b.CommissionAmount,
		PartnerEarnings: b.PartnerEarnings,
		Total:           b.TotalAmount,
	}
}

// TransferCents is the partner's share in minor units.
func (c Commission) TransferCents() int64 {
	return utils.ToMinorUnits(c.PartnerEarnings)
}
